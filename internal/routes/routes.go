package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	limiterStorage fiber.Storage,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Storage:           limiterStorage,
	}))

	api.Get("/health", healthHandler.Check)

	// Credential endpoints get a stricter limit: 10 req/min per IP
	auth := api.Group("/auth")
	strict := limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return "auth:" + c.IP() },
		Storage:           limiterStorage,
	})
	auth.Post("/signup", strict, authHandler.SignUp)
	auth.Post("/signin", strict, authHandler.SignIn)
	auth.Post("/oauth/:provider", strict, authHandler.OAuthLogin)
	auth.Get("/refresh", authHandler.Refresh)

	// Access-token routes. The middleware is attached per route so it never
	// runs in front of the refresh endpoint.
	protected := middleware.JWTProtected(cfg.JWTSecret)
	auth.Post("/logout", protected, authHandler.Logout)
	auth.Delete("/withdraw", protected, authHandler.Withdraw)
	auth.Get("/me", protected, authHandler.Me)
}
