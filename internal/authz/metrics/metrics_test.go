package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.CodesIssued.Inc()
	m.Token(TokenAccess)
	m.Token(TokenAccess)
	m.Token(TokenRefresh)
	m.Verification(true)
	m.Verification(false)
	m.Evicted(3)

	require.InDelta(t, 1, testutil.ToFloat64(m.CodesIssued), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.TokensIssued.WithLabelValues(TokenAccess)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.TokenVerifications.WithLabelValues(ResultInvalid)), 0)
	require.InDelta(t, 3, testutil.ToFloat64(m.TokenEvictions), 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.Revocations.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "authz_revocations_total 1")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.CodeIssued()
		m.Token(TokenID)
		m.Verification(true)
		m.Evicted(1)
		m.Revoked()
	})
}
