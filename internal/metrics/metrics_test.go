package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetAuthMetrics() {
	authLoginsTotal = nil
	authTokensIssuedTotal = nil
	authRefreshTotal = nil
	authFederationFailureTotal = nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestHelpersAreNoopsBeforeRegister(t *testing.T) {
	resetAuthMetrics()

	assert.NotPanics(t, func() {
		IncLogin("email", "success")
		IncTokenIssued("access")
		IncRefresh("rotated")
		IncFederationFailure("kakao")
	})
}

func TestRegisterExposesAuthMetrics(t *testing.T) {
	resetAuthMetrics()
	t.Cleanup(resetAuthMetrics)

	reg := prometheus.NewRegistry()
	Register(reg)

	IncLogin("email", "success")
	IncLogin("email", "success")
	IncLogin("kakao", "failure")
	IncTokenIssued("refresh")
	IncRefresh("kept")
	IncFederationFailure("naver")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, name := range []string{
		"pinplace_auth_logins_total",
		"pinplace_auth_tokens_issued_total",
		"pinplace_auth_refresh_total",
		"pinplace_auth_federation_failures_total",
	} {
		assert.NotNil(t, findMetricFamily(mfs, name), name)
	}

	logins := findMetricFamily(mfs, "pinplace_auth_logins_total")
	require.NotNil(t, logins)
	var total float64
	for _, m := range logins.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, total)
}

func TestRegisterNilRegistry(t *testing.T) {
	resetAuthMetrics()
	Register(nil)
	assert.Nil(t, authLoginsTotal)
}
