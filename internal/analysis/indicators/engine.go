package indicators

import (
	"fmt"

	"github.com/moznion/go-optional"

	"market-twin/internal/analysis"
	"market-twin/internal/config"
	"market-twin/internal/models"
)

// Long-horizon averages carried in the frame for display. They are not
// configurable and do not feed any rule.
const (
	longSMAPeriod    = 50
	longestSMAPeriod = 200
)

// Frame holds every indicator computed over one series, each aligned to the
// input bars.
type Frame struct {
	Len int `json:"len"`

	SMA    Values `json:"sma"`
	SMA50  Values `json:"sma50"`
	SMA200 Values `json:"sma200"`

	EMAFast []float64 `json:"emaFast"`
	EMAMid  []float64 `json:"emaMid"`
	EMASlow []float64 `json:"emaSlow"`
	EMA12   []float64 `json:"ema12"`
	EMA26   []float64 `json:"ema26"`

	RSI        Values          `json:"rsi"`
	StochRSI   StochRSIResult  `json:"stochRsi"`
	MACD       MACDResult      `json:"macd"`
	Bollinger  BollingerResult `json:"bollinger"`
	VWAP       []float64       `json:"vwap"`
	ATR        Values          `json:"atr"`
	ATRPercent Values          `json:"atrPercent"`
	Keltner    KeltnerResult   `json:"keltner"`

	Squeeze   []optional.Option[SqueezePoint]  `json:"ttmSqueeze"`
	Fibonacci optional.Option[FibonacciLevels] `json:"fibonacci"`
	Trend     []analysis.Trend                 `json:"trend"`

	cfg config.IndicatorConfig
}

// Bank computes the indicator frame with a fixed parameter set.
type Bank struct {
	cfg config.IndicatorConfig
}

// NewBank creates a new indicator bank. Invalid parameters are reported here
// so that Compute never panics on configuration.
func NewBank(cfg config.IndicatorConfig) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bank{cfg: cfg}, nil
}

// Config returns the parameters the bank computes with.
func (b *Bank) Config() config.IndicatorConfig {
	return b.cfg
}

// Compute builds every indicator over the series. Short series yield None
// entries rather than errors.
func (b *Bank) Compute(series models.Series) *Frame {
	cfg := b.cfg
	closes := series.Closes()

	f := &Frame{
		Len:     len(series),
		SMA:     SMA(closes, cfg.SMAPeriod),
		SMA50:   SMA(closes, longSMAPeriod),
		SMA200:  SMA(closes, longestSMAPeriod),
		EMAFast: EMA(closes, cfg.EMAFast),
		EMAMid:  EMA(closes, cfg.EMAMid),
		EMASlow: EMA(closes, cfg.EMASlow),
		EMA12:   EMA(closes, cfg.MACDFast),
		EMA26:   EMA(closes, cfg.MACDSlow),
		cfg:     cfg,
	}

	f.RSI = RSI(closes, cfg.RSIPeriod)
	f.StochRSI = StochRSI(f.RSI, cfg.StochRSIPeriod, cfg.StochRSISmoothK, cfg.StochRSISmoothD)
	f.MACD = MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	f.Bollinger = BollingerBands(closes, cfg.BBPeriod, cfg.BBStdDev)
	f.VWAP = VWAP(series)
	f.ATR = ATR(series, cfg.ATRPeriod)
	f.ATRPercent = ATRPercent(f.ATR, closes)
	f.Keltner = KeltnerChannels(series, closes, cfg.SqueezePeriod, cfg.KeltnerMult)
	f.Squeeze = TTMSqueeze(series, closes, cfg.SqueezePeriod, cfg.BBStdDev, cfg.KeltnerMult)
	f.Fibonacci = Fibonacci(series, cfg.FibWindow)
	f.Trend = TrendLabels(closes, f.EMAMid)

	return f
}

// TrendLabels classifies each close against its medium EMA.
func TrendLabels(closes, ema []float64) []analysis.Trend {
	labels := make([]analysis.Trend, len(closes))
	for i, c := range closes {
		switch {
		case c > ema[i]:
			labels[i] = analysis.TrendUp
		case c < ema[i]:
			labels[i] = analysis.TrendDown
		default:
			labels[i] = analysis.TrendConsolidating
		}
	}
	return labels
}

// Config returns the parameters the frame was computed with.
func (f *Frame) Config() config.IndicatorConfig {
	return f.cfg
}

// LatestTrend returns the trend label of the last bar.
func (f *Frame) LatestTrend() analysis.Trend {
	if len(f.Trend) == 0 {
		return analysis.TrendConsolidating
	}
	return f.Trend[len(f.Trend)-1]
}

// SqueezeAt returns the squeeze reading at index i and whether it is defined.
func (f *Frame) SqueezeAt(i int) (SqueezePoint, bool) {
	if i < 0 || i >= len(f.Squeeze) || f.Squeeze[i].IsNone() {
		return SqueezePoint{}, false
	}
	return f.Squeeze[i].Unwrap(), true
}

// Series returns the name-keyed view of every numeric indicator sequence.
// Names embed the configured periods, e.g. sma20 and ema9 with defaults.
func (f *Frame) Series() map[string]Values {
	cfg := f.cfg
	out := map[string]Values{
		"rsi":            f.RSI,
		"stochrsi.k":     f.StochRSI.K,
		"stochrsi.d":     f.StochRSI.D,
		"macd.macd":      Full(f.MACD.MACD),
		"macd.signal":    Full(f.MACD.Signal),
		"macd.histogram": Full(f.MACD.Histogram),
		"bb.upper":       f.Bollinger.Upper,
		"bb.middle":      f.Bollinger.Middle,
		"bb.lower":       f.Bollinger.Lower,
		"bb.width":       f.Bollinger.Width,
		"bb.percentb":    f.Bollinger.PercentB,
		"vwap":           Full(f.VWAP),
		"atr":            f.ATR,
		"atr.percent":    f.ATRPercent,
		"kc.middle":      Full(f.Keltner.Middle),
		"kc.upper":       f.Keltner.Upper,
		"kc.lower":       f.Keltner.Lower,
	}

	out[fmt.Sprintf("sma%d", cfg.SMAPeriod)] = f.SMA
	out[fmt.Sprintf("sma%d", longSMAPeriod)] = f.SMA50
	out[fmt.Sprintf("sma%d", longestSMAPeriod)] = f.SMA200

	// EMA names may collide when periods coincide; the values are identical
	// in that case.
	out[fmt.Sprintf("ema%d", cfg.EMAFast)] = Full(f.EMAFast)
	out[fmt.Sprintf("ema%d", cfg.EMAMid)] = Full(f.EMAMid)
	out[fmt.Sprintf("ema%d", cfg.EMASlow)] = Full(f.EMASlow)
	out[fmt.Sprintf("ema%d", cfg.MACDFast)] = Full(f.EMA12)
	out[fmt.Sprintf("ema%d", cfg.MACDSlow)] = Full(f.EMA26)

	momentum := make(Values, len(f.Squeeze))
	for i, p := range f.Squeeze {
		if p.IsSome() {
			momentum[i] = optional.Some(p.Unwrap().Momentum)
		}
	}
	out["ttm.momentum"] = momentum

	return out
}
