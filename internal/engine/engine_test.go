package engine

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-twin/internal/analysis"
	"market-twin/internal/config"
	apperrors "market-twin/internal/errors"
	"market-twin/internal/metrics"
	"market-twin/internal/models"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bars(closes []float64, volume int64) models.Series {
	series := make(models.Series, len(closes))
	for i, c := range closes {
		series[i] = models.Bar{
			Timestamp: t0.AddDate(0, 0, i),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    volume,
		}
	}
	return series
}

func ramp(n int, start, end float64) []float64 {
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func newAnalyzer(t *testing.T, cfg *config.Config) (*Analyzer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	a, err := NewAnalyzer(cfg, zerolog.Nop(), m)
	require.NoError(t, err)
	return a, m
}

func signalTypes(signals []analysis.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Type
	}
	return out
}

func TestEvaluateRisingSeries(t *testing.T) {
	a, m := newAnalyzer(t, nil)

	res, err := a.Evaluate(bars(ramp(30, 100, 130), 1000))
	require.NoError(t, err)

	rsi, ok := res.Frame.RSI.Last()
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)
	assert.Greater(t, res.Frame.EMAFast[29], res.Frame.EMAMid[29])

	assert.Contains(t, signalTypes(res.Signals), "Perfect Bullish Stack")
	assert.GreaterOrEqual(t, res.Verdict.Tier.Rank(), analysis.WeakBuy.Rank())
	assert.Equal(t, analysis.StrongBuy, res.Verdict.Tier)
	assert.Equal(t, analysis.TrendUp, res.Trend)
	assert.Empty(t, res.Adjustments)
	assert.InDelta(t, 130.0, res.LastBar.Close, 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("STRONG BUY")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.BarsEvaluated))
}

// Zero volume everywhere defaults each bar's weight to 1. With no gains and no
// losses the RSI guard reads 100, so the flat series is "overbought" and the
// zero-width Bollinger band counts as an upper touch.
func TestEvaluateFlatZeroVolume(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 50
	}
	series := bars(closes, 0)
	for i := range series {
		series[i].High, series[i].Low = 50, 50
	}

	res, err := a.Evaluate(series)
	require.NoError(t, err)

	for i, v := range res.Frame.VWAP {
		assert.Equal(t, 50.0, v, "vwap at %d", i)
	}
	rsi, ok := res.Frame.RSI.Last()
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)

	assert.Equal(t, []string{"RSI Overbought", "Bollinger Upper Touch", "VWAP Support Zone"}, signalTypes(res.Signals))
	assert.Equal(t, analysis.ModerateSell, res.Verdict.Tier)
	assert.Equal(t, 2, res.Verdict.NetScore)
	assert.Empty(t, res.Levels)
	assert.Empty(t, res.Patterns)
	assert.Equal(t, analysis.TrendConsolidating, res.Trend)
}

func TestEvaluateEmptySeries(t *testing.T) {
	a, m := newAnalyzer(t, nil)

	_, err := a.Evaluate(nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptySeries)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("error")))
}

func TestEvaluateNonMonotonic(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	series := bars(ramp(10, 100, 110), 1000)
	series[6].Timestamp = series[2].Timestamp

	_, err := a.Evaluate(series)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNonMonotonic))

	var dataErr *apperrors.DataError
	require.True(t, apperrors.As(err, &dataErr))
	assert.Equal(t, 6, dataErr.Index)
}

func TestEvaluateEqualTimestampsAllowed(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	series := bars(ramp(10, 100, 110), 1000)
	series[5].Timestamp = series[4].Timestamp

	_, err := a.Evaluate(series)
	assert.NoError(t, err)
}

func TestEvaluateSanitisesMalformedBars(t *testing.T) {
	a, m := newAnalyzer(t, nil)

	series := bars(ramp(30, 100, 130), 1000)
	series[10].Close = math.NaN()
	series[12].Volume = -5

	res, err := a.Evaluate(series)
	require.NoError(t, err)

	require.NotEmpty(t, res.Adjustments)
	first := res.Adjustments[0]
	assert.Equal(t, 10, first.Index)
	assert.Equal(t, "close", first.Field)
	assert.True(t, math.IsNaN(first.From))
	assert.Equal(t, series[9].Close, first.To)
	assert.True(t, math.IsNaN(series[10].Close), "input must not be modified")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdjustmentsTotal.WithLabelValues("close")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdjustmentsTotal.WithLabelValues("volume")))
}

func TestEvaluateReplacesInfiniteValues(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	series := bars(ramp(40, 100, 140), 1000)
	series[10].Close = math.Inf(1)
	series[15].Low = math.Inf(-1)

	res, err := a.Evaluate(series)
	require.NoError(t, err)

	// bar 10 takes the previous close, which then sits below its low
	require.Len(t, res.Adjustments, 3)
	assert.Equal(t, 10, res.Adjustments[0].Index)
	assert.Equal(t, "close", res.Adjustments[0].Field)
	assert.True(t, math.IsInf(res.Adjustments[0].From, 1))
	assert.Equal(t, series[9].Close, res.Adjustments[0].To)
	assert.Equal(t, 10, res.Adjustments[1].Index)
	assert.Equal(t, "low", res.Adjustments[1].Field)
	assert.Equal(t, series[9].Close, res.Adjustments[1].To)
	assert.Equal(t, 15, res.Adjustments[2].Index)
	assert.Equal(t, "low", res.Adjustments[2].Field)
	assert.Equal(t, series[15].Close, res.Adjustments[2].To)

	for i, v := range res.Frame.VWAP {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v), "vwap[%d] = %v", i, v)
	}
	assert.Greater(t, res.Verdict.Tier.Rank(), 0)
}

func TestEvaluateTruncatesToMaxBars(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MaxBars = 20
	a, _ := newAnalyzer(t, cfg)

	res, err := a.Evaluate(bars(ramp(60, 100, 160), 1000))
	require.NoError(t, err)
	assert.Equal(t, 20, res.Frame.Len)
	assert.InDelta(t, 160.0, res.LastBar.Close, 1e-9)
}

func TestNewAnalyzerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Indicators.RSIPeriod = 0

	_, err := NewAnalyzer(cfg, zerolog.Nop(), nil)
	require.Error(t, err)

	var cfgErr *apperrors.ConfigError
	require.True(t, apperrors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Field, "RSIPeriod")
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestSnapshot(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	snap, err := a.Snapshot(bars(ramp(30, 100, 130), 1000))
	require.NoError(t, err)
	assert.Equal(t, analysis.StrongBuy, snap.Verdict.Tier)
	assert.InDelta(t, 130.0, snap.LastClose, 1e-9)
	assert.True(t, snap.RSI.IsSome())

	snap, err = a.Snapshot(bars([]float64{100, 101, 102}, 1000))
	require.NoError(t, err)
	assert.True(t, snap.RSI.IsNone())
}

func TestEvaluateAll(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	results, err := a.EvaluateAll(context.Background(), map[string]models.Series{
		"UP":    bars(ramp(30, 100, 130), 1000),
		"DOWN":  bars(ramp(30, 130, 100), 1000),
		"EMPTY": nil,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "DOWN", results[0].Symbol)
	assert.NoError(t, results[0].Err)
	assert.Less(t, results[0].Result.Verdict.Tier.Rank(), 0)

	assert.Equal(t, "EMPTY", results[1].Symbol)
	assert.ErrorIs(t, results[1].Err, apperrors.ErrEmptySeries)
	assert.Nil(t, results[1].Result)

	assert.Equal(t, "UP", results[2].Symbol)
	assert.Equal(t, analysis.StrongBuy, results[2].Result.Verdict.Tier)
}

func TestEvaluateAllCancelled(t *testing.T) {
	a, _ := newAnalyzer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.EvaluateAll(ctx, map[string]models.Series{"UP": bars(ramp(30, 100, 130), 1000)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProperty_EvaluateIdempotent(t *testing.T) {
	a, _ := newAnalyzer(t, nil)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.MaxShrinkCount = 0
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluating the same series twice gives identical results", prop.ForAll(
		func(moves []float64) bool {
			closes := make([]float64, len(moves))
			price := 100.0
			for i, mv := range moves {
				price = math.Max(1, price+mv)
				closes[i] = price
			}
			series := bars(closes, 1000)

			first, err1 := a.Evaluate(series)
			second, err2 := a.Evaluate(series)
			if err1 != nil || err2 != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOfN(80, gen.Float64Range(-3, 3)),
	))

	properties.TestingRun(t)
}
