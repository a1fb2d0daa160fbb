package scoring

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-twin/internal/analysis"
	"market-twin/internal/analysis/indicators"
	"market-twin/internal/analysis/patterns"
	"market-twin/internal/config"
	"market-twin/internal/models"
)

func closesSeries(closes ...float64) models.Series {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	series := make(models.Series, len(closes))
	for i, c := range closes {
		series[i] = models.Bar{
			Timestamp: t0.AddDate(0, 0, i),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return series
}

// rampSeries is n bars of closes rising linearly from start to end.
func rampSeries(n int, start, end float64) models.Series {
	closes := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return closesSeries(closes...)
}

func newTestGenerator() *Generator {
	return NewGenerator(config.DefaultSignalConfig())
}

func types(signals []analysis.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Type
	}
	return out
}

func TestRSISignals(t *testing.T) {
	g := newTestGenerator()

	tests := []struct {
		name string
		rsi  float64
		macd []float64
		sig  []float64
		typ  string
		dir  analysis.Direction
		conf analysis.Confidence
	}{
		{"overbought with macd rising", 75, []float64{1, 2}, []float64{0, 0}, "RSI Overbought", analysis.Bearish, analysis.ConfidenceMedium},
		{"overbought confirmed by falling macd", 75, []float64{2, 1}, []float64{0, 0}, "RSI Overbought", analysis.Bearish, analysis.ConfidenceHigh},
		{"oversold below signal", 25, []float64{-2, -1}, []float64{0, 0}, "RSI Oversold", analysis.Bullish, analysis.ConfidenceMedium},
		{"oversold confirmed by macd above signal", 25, []float64{-2, -1}, []float64{-3, -2}, "RSI Oversold", analysis.Bullish, analysis.ConfidenceHigh},
		{"bullish zone", 60, []float64{0, 0}, []float64{0, 0}, "RSI Bullish Zone", analysis.Bullish, analysis.ConfidenceLow},
		{"midline is bearish zone", 50, []float64{0, 0}, []float64{0, 0}, "RSI Bearish Zone", analysis.Bearish, analysis.ConfidenceLow},
		{"exactly overbought is bullish zone", 70, []float64{0, 0}, []float64{0, 0}, "RSI Bullish Zone", analysis.Bullish, analysis.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &indicators.Frame{
				RSI:  indicators.Full([]float64{50, tt.rsi}),
				MACD: indicators.MACDResult{MACD: tt.macd, Signal: tt.sig},
			}
			out := g.rsiSignals(nil, f)
			require.Len(t, out, 1)
			assert.Equal(t, tt.typ, out[0].Type)
			assert.Equal(t, tt.dir, out[0].Direction)
			assert.Equal(t, tt.conf, out[0].Confidence)
		})
	}
}

func TestRSISignalsSkipWithoutValue(t *testing.T) {
	f := &indicators.Frame{RSI: make(indicators.Values, 5)}
	assert.Empty(t, newTestGenerator().rsiSignals(nil, f))
}

func TestMACDSignals(t *testing.T) {
	g := newTestGenerator()

	tests := []struct {
		name   string
		macd   []float64
		signal []float64
		want   string
	}{
		{"bullish crossover", []float64{0, -1, 1}, []float64{0, 0, 0}, "MACD Bullish Crossover"},
		{"bullish crossover from equality", []float64{0, 0, 1}, []float64{0, 0, 0}, "MACD Bullish Crossover"},
		{"bearish crossover", []float64{0, 1, -1}, []float64{0, 0, 0}, "MACD Bearish Crossover"},
		{"weakening", []float64{0, 1, 1.4}, []float64{0, 0, 0}, "MACD Momentum Weakening"},
		{"steady rise", []float64{0, 1, 1.6}, []float64{0, 0, 0}, ""},
		{"prior bar falling", []float64{2, 1, 1.1}, []float64{0, 0, 0}, ""},
		{"below signal", []float64{-1, -2, -3}, []float64{0, 0, 0}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := make([]float64, len(tt.macd))
			for i := range hist {
				hist[i] = tt.macd[i] - tt.signal[i]
			}
			f := &indicators.Frame{MACD: indicators.MACDResult{MACD: tt.macd, Signal: tt.signal, Histogram: hist}}
			out := g.macdSignals(nil, f)
			if tt.want == "" {
				assert.Empty(t, out)
				return
			}
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Type)
		})
	}
}

func TestBollingerSignals(t *testing.T) {
	g := newTestGenerator()
	series := closesSeries(100, 100)

	band := func(upper, lower float64) *indicators.Frame {
		return &indicators.Frame{Bollinger: indicators.BollingerResult{
			Upper: indicators.Values{optional.None[float64](), optional.Some(upper)},
			Lower: indicators.Values{optional.None[float64](), optional.Some(lower)},
		}}
	}

	out := g.bollingerSignals(nil, series, band(100, 90))
	require.Len(t, out, 1)
	assert.Equal(t, analysis.Bearish, out[0].Direction)
	assert.Equal(t, analysis.ConfidenceMedium, out[0].Confidence)

	out = g.bollingerSignals(nil, series, band(110, 100))
	require.Len(t, out, 1)
	assert.Equal(t, analysis.Bullish, out[0].Direction)

	assert.Empty(t, g.bollingerSignals(nil, series, band(110, 90)))

	undefined := &indicators.Frame{Bollinger: indicators.BollingerResult{
		Upper: make(indicators.Values, 2),
		Lower: make(indicators.Values, 2),
	}}
	assert.Empty(t, g.bollingerSignals(nil, series, undefined))
}

func TestEMASignals(t *testing.T) {
	g := newTestGenerator()
	flat := func(n int, v float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	t.Run("bullish stack with recent golden cross", func(t *testing.T) {
		series := closesSeries(10, 10, 10, 10, 10, 10, 10)
		f := &indicators.Frame{
			EMAFast: []float64{1, 1, 1, 1, 1, 1, 3},
			EMAMid:  flat(7, 2),
			EMASlow: flat(7, 1.5),
		}
		out := g.emaSignals(nil, series, f)
		assert.Equal(t, []string{"Perfect Bullish Stack", "Golden Cross (Recent)"}, types(out))
		assert.Equal(t, analysis.ConfidenceHigh, out[1].Confidence)
	})

	t.Run("older golden cross is active", func(t *testing.T) {
		series := closesSeries(1, 1, 1, 1, 1, 1, 1)
		f := &indicators.Frame{
			EMAFast: []float64{1, 3, 3, 3, 3, 3, 3},
			EMAMid:  flat(7, 2),
			EMASlow: flat(7, 2.5),
		}
		out := g.emaSignals(nil, series, f)
		require.Len(t, out, 1)
		assert.Equal(t, "Golden Cross Active", out[0].Type)
		assert.Equal(t, analysis.ConfidenceMedium, out[0].Confidence)
	})

	t.Run("bearish stack with recent death cross", func(t *testing.T) {
		series := closesSeries(1, 1, 1, 1, 1, 1, 1)
		f := &indicators.Frame{
			EMAFast: []float64{3, 3, 3, 3, 3, 1.5, 1.5},
			EMAMid:  flat(7, 2),
			EMASlow: flat(7, 2.5),
		}
		out := g.emaSignals(nil, series, f)
		assert.Equal(t, []string{"Perfect Bearish Stack", "Death Cross (Recent)"}, types(out))
	})

	t.Run("equal fast and mid emit no cross", func(t *testing.T) {
		series := closesSeries(1, 1, 1)
		f := &indicators.Frame{EMAFast: flat(3, 2), EMAMid: flat(3, 2), EMASlow: flat(3, 2)}
		assert.Empty(t, g.emaSignals(nil, series, f))
	})
}

func TestVWAPSignals(t *testing.T) {
	g := newTestGenerator()
	series := closesSeries(100)

	tests := []struct {
		vwap float64
		typ  string
		dir  analysis.Direction
		conf analysis.Confidence
	}{
		{97, "Extended Above VWAP", analysis.Caution, analysis.ConfidenceMedium},
		{99, "VWAP Support Zone", analysis.Bullish, analysis.ConfidenceMedium},
		{100, "VWAP Support Zone", analysis.Bullish, analysis.ConfidenceMedium},
		{101, "Below VWAP", analysis.Neutral, analysis.ConfidenceLow},
		{105, "VWAP Bounce Opportunity", analysis.Bullish, analysis.ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			out := g.vwapSignals(nil, series, &indicators.Frame{VWAP: []float64{tt.vwap}})
			require.Len(t, out, 1)
			assert.Equal(t, tt.typ, out[0].Type)
			assert.Equal(t, tt.dir, out[0].Direction)
			assert.Equal(t, tt.conf, out[0].Confidence)
		})
	}
}

func TestSqueezeSignals(t *testing.T) {
	g := newTestGenerator()
	point := func(in bool, mom float64, color indicators.BarColor) optional.Option[indicators.SqueezePoint] {
		return optional.Some(indicators.SqueezePoint{InSqueeze: in, Momentum: mom, BarColor: color})
	}

	t.Run("in squeeze", func(t *testing.T) {
		f := &indicators.Frame{Squeeze: []optional.Option[indicators.SqueezePoint]{
			point(true, 0.5, indicators.BarGreen),
			point(true, 0.4, indicators.BarGreen),
		}}
		out := g.squeezeSignals(nil, f)
		require.Len(t, out, 1)
		assert.Equal(t, "TTM Squeeze On", out[0].Type)
		assert.Equal(t, analysis.Neutral, out[0].Direction)
		assert.Equal(t, analysis.ConfidenceHigh, out[0].Confidence)
	})

	t.Run("fired up with lime bar", func(t *testing.T) {
		f := &indicators.Frame{Squeeze: []optional.Option[indicators.SqueezePoint]{
			point(true, 0.5, indicators.BarGreen),
			point(false, 1.2, indicators.BarLime),
		}}
		out := g.squeezeSignals(nil, f)
		assert.Equal(t, []string{"TTM Squeeze Fired", "TTM Momentum Rising"}, types(out))
		assert.Equal(t, analysis.Bullish, out[0].Direction)
	})

	t.Run("fired down with red bar", func(t *testing.T) {
		f := &indicators.Frame{Squeeze: []optional.Option[indicators.SqueezePoint]{
			point(true, -0.5, indicators.BarRed),
			point(false, -1.2, indicators.BarRed),
		}}
		out := g.squeezeSignals(nil, f)
		assert.Equal(t, []string{"TTM Squeeze Fired", "TTM Momentum Falling"}, types(out))
		assert.Equal(t, analysis.Bearish, out[0].Direction)
		assert.Equal(t, analysis.Bearish, out[1].Direction)
	})

	t.Run("maroon emits nothing", func(t *testing.T) {
		f := &indicators.Frame{Squeeze: []optional.Option[indicators.SqueezePoint]{
			optional.None[indicators.SqueezePoint](),
			point(false, -0.2, indicators.BarMaroon),
		}}
		assert.Empty(t, g.squeezeSignals(nil, f))
	})

	t.Run("undefined", func(t *testing.T) {
		f := &indicators.Frame{Squeeze: make([]optional.Option[indicators.SqueezePoint], 3)}
		assert.Empty(t, g.squeezeSignals(nil, f))
	})
}

func TestLevelSignals(t *testing.T) {
	g := newTestGenerator()
	series := closesSeries(100)
	levels := []analysis.Level{
		{Price: 100.8, Type: analysis.LevelResistance, Touches: 2},
		{Price: 105, Type: analysis.LevelResistance, Touches: 4},
		{Price: 99.5, Type: analysis.LevelSupport, Touches: 3},
	}

	out := g.levelSignals(nil, series, levels)
	require.Len(t, out, 2)
	assert.Equal(t, "Near Resistance", out[0].Type)
	assert.Equal(t, analysis.Bearish, out[0].Direction)
	assert.Equal(t, analysis.ConfidenceMedium, out[0].Confidence)
	assert.Equal(t, "Near Support", out[1].Type)
	assert.Equal(t, analysis.Bullish, out[1].Direction)
	assert.Equal(t, analysis.ConfidenceHigh, out[1].Confidence)
}

func TestPatternSignals(t *testing.T) {
	g := newTestGenerator()
	series := rampSeries(50, 100, 120)
	ps := []analysis.Pattern{
		{Type: analysis.PatternDoubleTop, Direction: analysis.Bearish, Price: 110, StartIndex: 10, EndIndex: 20},
		{Type: analysis.PatternDoubleBottom, Direction: analysis.Bullish, Price: 95, StartIndex: 15, EndIndex: 40},
	}

	out := g.patternSignals(nil, series, ps)
	require.Len(t, out, 1)
	assert.Equal(t, "Double Bottom", out[0].Type)
	assert.Equal(t, analysis.Bullish, out[0].Direction)
	assert.Equal(t, analysis.ConfidenceHigh, out[0].Confidence)
}

func TestGenerateRisingSeries(t *testing.T) {
	series := rampSeries(30, 100, 130)

	bank, err := indicators.NewBank(config.DefaultIndicatorConfig())
	require.NoError(t, err)
	frame := bank.Compute(series)
	detector := patterns.NewDetector(config.DefaultLevelConfig())

	signals := GenerateSignals(series, frame, detector.Levels(series), detector.Patterns(series), config.DefaultSignalConfig())

	assert.Equal(t, []string{
		"RSI Overbought",
		"Perfect Bullish Stack",
		"Golden Cross Active",
		"Extended Above VWAP",
		"TTM Momentum Rising",
	}, types(signals))

	v := AggregateStrength(signals)
	assert.GreaterOrEqual(t, v.Tier.Rank(), analysis.WeakBuy.Rank())
	assert.Equal(t, analysis.StrongBuy, v.Tier)
	assert.Equal(t, 8, v.BullishWeight)
	assert.Equal(t, 2, v.BearishWeight)
}

func TestGenerateEmptyInput(t *testing.T) {
	assert.Nil(t, newTestGenerator().Generate(nil, nil, nil, nil))
}
