package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-twin/internal/analysis"
)

func TestObserveEvaluation(t *testing.T) {
	m := New()

	signals := []analysis.Signal{
		{Type: "a", Direction: analysis.Bullish, Confidence: analysis.ConfidenceHigh},
		{Type: "b", Direction: analysis.Bullish, Confidence: analysis.ConfidenceLow},
		{Type: "c", Direction: analysis.Caution, Confidence: analysis.ConfidenceMedium},
	}
	m.ObserveEvaluation(30, 2*time.Millisecond, signals, analysis.Verdict{Tier: analysis.ModerateBuy})
	m.ObserveEvaluation(25, time.Millisecond, nil, analysis.Verdict{Tier: analysis.Wait})
	m.ObserveFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BULLISH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("CAUTION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("MODERATE BUY")))
	assert.Equal(t, 55.0, testutil.ToFloat64(m.BarsEvaluated))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluateDur))
}

func TestObserveAdjustment(t *testing.T) {
	m := New()
	m.ObserveAdjustment("close")
	m.ObserveAdjustment("close")
	m.ObserveAdjustment("volume")

	expected := `
# HELP twin_bar_adjustments_total Malformed bar fields substituted during sanitisation
# TYPE twin_bar_adjustments_total counter
twin_bar_adjustments_total{field="close"} 2
twin_bar_adjustments_total{field="volume"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.AdjustmentsTotal, strings.NewReader(expected)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvaluation(1, time.Second, nil, analysis.Verdict{})
		m.ObserveFailure()
		m.ObserveAdjustment("open")
	})
}

func TestPrivateRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.EvaluationsTotal.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EvaluationsTotal.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `twin_evaluations_total{outcome="error"} 1`)
}

func TestServerServesMetricsAndHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := New()
	m.ObserveFailure()

	srv := NewServer(addr, m, zerolog.Nop())
	srv.Start()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `twin_evaluations_total{outcome="error"} 1`)
}
