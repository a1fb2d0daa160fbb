// Package scoring turns indicator frames into discrete signals, aggregates
// them into a verdict and ranks symbols by that verdict.
package scoring

import (
	"fmt"
	"math"

	"market-twin/internal/analysis"
	"market-twin/internal/analysis/indicators"
	"market-twin/internal/config"
	"market-twin/internal/models"
)

// Generator evaluates the signal rule catalogue against the latest bar.
type Generator struct {
	cfg config.SignalConfig
}

// NewGenerator creates a signal generator with the given thresholds.
func NewGenerator(cfg config.SignalConfig) *Generator {
	return &Generator{cfg: cfg}
}

// GenerateSignals is a convenience wrapper around Generator.Generate.
func GenerateSignals(series models.Series, frame *indicators.Frame, levels []analysis.Level, patterns []analysis.Pattern, cfg config.SignalConfig) []analysis.Signal {
	return NewGenerator(cfg).Generate(series, frame, levels, patterns)
}

// Generate runs every rule in a fixed order. Rules never short-circuit each
// other; a rule whose inputs have no value at the latest bar emits nothing.
func (g *Generator) Generate(series models.Series, frame *indicators.Frame, levels []analysis.Level, patterns []analysis.Pattern) []analysis.Signal {
	if len(series) == 0 || frame == nil {
		return nil
	}

	signals := make([]analysis.Signal, 0, 12)
	signals = g.rsiSignals(signals, frame)
	signals = g.macdSignals(signals, frame)
	signals = g.bollingerSignals(signals, series, frame)
	signals = g.emaSignals(signals, series, frame)
	signals = g.vwapSignals(signals, series, frame)
	signals = g.squeezeSignals(signals, frame)
	signals = g.levelSignals(signals, series, levels)
	signals = g.patternSignals(signals, series, patterns)
	return signals
}

func (g *Generator) rsiSignals(out []analysis.Signal, f *indicators.Frame) []analysis.Signal {
	rsi, ok := f.RSI.Last()
	if !ok {
		return out
	}
	value := fmt.Sprintf("%.1f", rsi)
	macd := f.MACD.MACD
	n := len(macd)

	switch {
	case rsi > g.cfg.RSIOverbought:
		conf := analysis.ConfidenceMedium
		if n >= 2 && macd[n-1] < macd[n-2] {
			conf = analysis.ConfidenceHigh
		}
		out = append(out, analysis.Signal{
			Type:        "RSI Overbought",
			Direction:   analysis.Bearish,
			Confidence:  conf,
			Description: fmt.Sprintf("RSI above %.0f, pullback risk", g.cfg.RSIOverbought),
			Value:       value,
		})
	case rsi < g.cfg.RSIOversold:
		conf := analysis.ConfidenceMedium
		if n >= 1 && macd[n-1] > f.MACD.Signal[n-1] {
			conf = analysis.ConfidenceHigh
		}
		out = append(out, analysis.Signal{
			Type:        "RSI Oversold",
			Direction:   analysis.Bullish,
			Confidence:  conf,
			Description: fmt.Sprintf("RSI below %.0f, bounce potential", g.cfg.RSIOversold),
			Value:       value,
		})
	case rsi > g.cfg.RSIMidline:
		out = append(out, analysis.Signal{
			Type:        "RSI Bullish Zone",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceLow,
			Description: "RSI above midline",
			Value:       value,
		})
	default:
		out = append(out, analysis.Signal{
			Type:        "RSI Bearish Zone",
			Direction:   analysis.Bearish,
			Confidence:  analysis.ConfidenceLow,
			Description: "RSI at or below midline",
			Value:       value,
		})
	}
	return out
}

func (g *Generator) macdSignals(out []analysis.Signal, f *indicators.Frame) []analysis.Signal {
	macd, signal := f.MACD.MACD, f.MACD.Signal
	n := len(macd)
	if n < 2 {
		return out
	}

	cur, prev := macd[n-1], macd[n-2]
	curSig, prevSig := signal[n-1], signal[n-2]
	value := fmt.Sprintf("%.4f", f.MACD.Histogram[n-1])

	switch {
	case prev <= prevSig && cur > curSig:
		out = append(out, analysis.Signal{
			Type:        "MACD Bullish Crossover",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "MACD crossed above its signal line",
			Value:       value,
		})
	case prev >= prevSig && cur < curSig:
		out = append(out, analysis.Signal{
			Type:        "MACD Bearish Crossover",
			Direction:   analysis.Bearish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "MACD crossed below its signal line",
			Value:       value,
		})
	case cur > curSig && n >= 3:
		increase := cur - prev
		prevIncrease := prev - macd[n-3]
		if prevIncrease > 0 && increase < prevIncrease/2 {
			out = append(out, analysis.Signal{
				Type:        "MACD Momentum Weakening",
				Direction:   analysis.Caution,
				Confidence:  analysis.ConfidenceMedium,
				Description: "MACD still above signal but its rise has slowed by more than half",
				Value:       value,
			})
		}
	}
	return out
}

func (g *Generator) bollingerSignals(out []analysis.Signal, series models.Series, f *indicators.Frame) []analysis.Signal {
	upper, okU := f.Bollinger.Upper.Last()
	lower, okL := f.Bollinger.Lower.Last()
	if !okU || !okL {
		return out
	}
	price := series.Last().Close

	switch {
	case price >= upper:
		out = append(out, analysis.Signal{
			Type:        "Bollinger Upper Touch",
			Direction:   analysis.Bearish,
			Confidence:  analysis.ConfidenceMedium,
			Description: "Price at or above the upper band",
			Value:       fmt.Sprintf("%.2f", upper),
		})
	case price <= lower:
		out = append(out, analysis.Signal{
			Type:        "Bollinger Lower Touch",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceMedium,
			Description: "Price at or below the lower band",
			Value:       fmt.Sprintf("%.2f", lower),
		})
	}
	return out
}

func (g *Generator) emaSignals(out []analysis.Signal, series models.Series, f *indicators.Frame) []analysis.Signal {
	fast, mid, slow := f.EMAFast, f.EMAMid, f.EMASlow
	n := len(series)
	if len(fast) != n || len(mid) != n || len(slow) != n {
		return out
	}
	price := series.Last().Close
	e1, e2, e3 := fast[n-1], mid[n-1], slow[n-1]

	switch {
	case price > e1 && e1 > e2 && e2 > e3:
		out = append(out, analysis.Signal{
			Type:        "Perfect Bullish Stack",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Price above fast, mid and slow EMAs in ascending order",
		})
	case price < e1 && e1 < e2 && e2 < e3:
		out = append(out, analysis.Signal{
			Type:        "Perfect Bearish Stack",
			Direction:   analysis.Bearish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Price below fast, mid and slow EMAs in descending order",
		})
	}

	recent := recentCross(fast, mid, g.cfg.CrossLookback)
	switch {
	case e1 > e2:
		if recent > 0 {
			out = append(out, analysis.Signal{
				Type:        "Golden Cross (Recent)",
				Direction:   analysis.Bullish,
				Confidence:  analysis.ConfidenceHigh,
				Description: "Fast EMA crossed above mid EMA within the last few bars",
			})
		} else {
			out = append(out, analysis.Signal{
				Type:        "Golden Cross Active",
				Direction:   analysis.Bullish,
				Confidence:  analysis.ConfidenceMedium,
				Description: "Fast EMA holding above mid EMA",
			})
		}
	case e1 < e2:
		if recent < 0 {
			out = append(out, analysis.Signal{
				Type:        "Death Cross (Recent)",
				Direction:   analysis.Bearish,
				Confidence:  analysis.ConfidenceHigh,
				Description: "Fast EMA crossed below mid EMA within the last few bars",
			})
		} else {
			out = append(out, analysis.Signal{
				Type:        "Death Cross Active",
				Direction:   analysis.Bearish,
				Confidence:  analysis.ConfidenceMedium,
				Description: "Fast EMA holding below mid EMA",
			})
		}
	}
	return out
}

// recentCross scans the last lookback bars, newest first, for a crossover of
// fast over slow. It returns 1 for an upward cross, -1 for a downward cross
// and 0 when neither happened.
func recentCross(fast, slow []float64, lookback int) int {
	n := len(fast)
	for k := n - 1; k >= 1 && k >= n-lookback; k-- {
		if fast[k-1] <= slow[k-1] && fast[k] > slow[k] {
			return 1
		}
		if fast[k-1] >= slow[k-1] && fast[k] < slow[k] {
			return -1
		}
	}
	return 0
}

func (g *Generator) vwapSignals(out []analysis.Signal, series models.Series, f *indicators.Frame) []analysis.Signal {
	if len(f.VWAP) == 0 {
		return out
	}
	vwap := f.VWAP[len(f.VWAP)-1]
	if vwap == 0 {
		return out
	}
	dist := (series.Last().Close - vwap) / vwap * 100
	band := g.cfg.VWAPBandPercent
	value := fmt.Sprintf("%.2f%%", dist)

	switch {
	case dist > band:
		out = append(out, analysis.Signal{
			Type:        "Extended Above VWAP",
			Direction:   analysis.Caution,
			Confidence:  analysis.ConfidenceMedium,
			Description: "Price stretched above VWAP, mean reversion risk",
			Value:       value,
		})
	case dist >= 0:
		out = append(out, analysis.Signal{
			Type:        "VWAP Support Zone",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceMedium,
			Description: "Price holding just above VWAP",
			Value:       value,
		})
	case dist >= -band:
		out = append(out, analysis.Signal{
			Type:        "Below VWAP",
			Direction:   analysis.Neutral,
			Confidence:  analysis.ConfidenceLow,
			Description: "Price slightly below VWAP",
			Value:       value,
		})
	default:
		// Deep discount to VWAP reads as an oversold entry, not weakness.
		out = append(out, analysis.Signal{
			Type:        "VWAP Bounce Opportunity",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Price well below VWAP, potential reversion higher",
			Value:       value,
		})
	}
	return out
}

func (g *Generator) squeezeSignals(out []analysis.Signal, f *indicators.Frame) []analysis.Signal {
	n := len(f.Squeeze)
	cur, ok := f.SqueezeAt(n - 1)
	if !ok {
		return out
	}
	value := fmt.Sprintf("%.4f", cur.Momentum)

	if cur.InSqueeze {
		out = append(out, analysis.Signal{
			Type:        "TTM Squeeze On",
			Direction:   analysis.Neutral,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Volatility compression, breakout imminent",
			Value:       value,
		})
	} else if prev, ok := f.SqueezeAt(n - 2); ok && prev.InSqueeze {
		dir := analysis.Bullish
		if cur.Momentum < 0 {
			dir = analysis.Bearish
		}
		out = append(out, analysis.Signal{
			Type:        "TTM Squeeze Fired",
			Direction:   dir,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Squeeze released this bar in the direction of momentum",
			Value:       value,
		})
	}

	switch cur.BarColor {
	case indicators.BarLime:
		out = append(out, analysis.Signal{
			Type:        "TTM Momentum Rising",
			Direction:   analysis.Bullish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Positive squeeze momentum increasing",
			Value:       string(cur.BarColor),
		})
	case indicators.BarRed:
		out = append(out, analysis.Signal{
			Type:        "TTM Momentum Falling",
			Direction:   analysis.Bearish,
			Confidence:  analysis.ConfidenceHigh,
			Description: "Negative squeeze momentum deepening",
			Value:       string(cur.BarColor),
		})
	}
	return out
}

func (g *Generator) levelSignals(out []analysis.Signal, series models.Series, levels []analysis.Level) []analysis.Signal {
	price := series.Last().Close
	for _, lvl := range levels {
		if lvl.Price == 0 || math.Abs(price-lvl.Price)/lvl.Price > g.cfg.LevelProximity {
			continue
		}
		conf := analysis.ConfidenceMedium
		if lvl.Touches >= g.cfg.StrongTouches {
			conf = analysis.ConfidenceHigh
		}
		sig := analysis.Signal{
			Confidence: conf,
			Value:      fmt.Sprintf("%.2f", lvl.Price),
		}
		if lvl.Type == analysis.LevelSupport {
			sig.Type = "Near Support"
			sig.Direction = analysis.Bullish
			sig.Description = fmt.Sprintf("Price near support tested %d times", lvl.Touches)
		} else {
			sig.Type = "Near Resistance"
			sig.Direction = analysis.Bearish
			sig.Description = fmt.Sprintf("Price near resistance tested %d times", lvl.Touches)
		}
		out = append(out, sig)
	}
	return out
}

func (g *Generator) patternSignals(out []analysis.Signal, series models.Series, patterns []analysis.Pattern) []analysis.Signal {
	last := len(series) - 1
	for _, p := range patterns {
		if last-p.EndIndex >= g.cfg.PatternRecency {
			continue
		}
		out = append(out, analysis.Signal{
			Type:        string(p.Type),
			Direction:   p.Direction,
			Confidence:  analysis.ConfidenceHigh,
			Description: fmt.Sprintf("%s completed %d bars ago", p.Type, last-p.EndIndex),
			Value:       fmt.Sprintf("%.2f", p.Price),
		})
	}
	return out
}
