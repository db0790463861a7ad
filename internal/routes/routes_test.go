package routes

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/handlers"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "pinplace_test_total", Help: "test"}))

	app := fiber.New()
	cfg := &config.Config{JWTSecret: "routes-test-secret"}
	Setup(app, cfg, reg, nil,
		handlers.NewAuthHandler(nil, time.Second),
		handlers.NewHealthHandler(func() error { return nil }),
	)
	return app
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pinplace_test_total 0")
}

func TestProtectedRoutesRequireAccessToken(t *testing.T) {
	app := newApp(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodDelete, "/api/auth/withdraw"},
		{http.MethodGet, "/api/auth/me"},
	} {
		resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, r.path)
	}
}

func TestCredentialRoutesAreRateLimited(t *testing.T) {
	app := newApp(t)

	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/oauth/github", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
