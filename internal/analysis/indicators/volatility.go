package indicators

import (
	"github.com/moznion/go-optional"

	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
)

// BollingerResult holds Bollinger Bands and the derived width/%B lines.
type BollingerResult struct {
	Upper    Values `json:"upper"`
	Middle   Values `json:"middle"`
	Lower    Values `json:"lower"`
	Width    Values `json:"width"`
	PercentB Values `json:"percentB"`
}

// BollingerBands calculates Bollinger Bands with a population standard
// deviation over the same trailing window as the middle SMA.
func BollingerBands(closes []float64, period int, stdDevMul float64) BollingerResult {
	apperrors.MustPositive("bb.period", period)
	if stdDevMul <= 0 {
		panic(apperrors.NewConfigError("bb.std_dev", stdDevMul, "must be positive"))
	}

	n := len(closes)
	res := BollingerResult{
		Upper:    make(Values, n),
		Middle:   SMA(closes, period),
		Lower:    make(Values, n),
		Width:    make(Values, n),
		PercentB: make(Values, n),
	}

	for i := period - 1; i < n; i++ {
		middle, _ := res.Middle.At(i)
		sd := stdDev(closes[i-period+1 : i+1])

		upper := middle + stdDevMul*sd
		lower := middle - stdDevMul*sd
		res.Upper[i] = optional.Some(upper)
		res.Lower[i] = optional.Some(lower)

		// Width = (Upper - Lower) / Middle
		if middle != 0 {
			res.Width[i] = optional.Some((upper - lower) / middle)
		}

		// %B = (Price - Lower) / (Upper - Lower)
		if band := upper - lower; band != 0 {
			res.PercentB[i] = optional.Some((closes[i] - lower) / band)
		}
	}

	return res
}

// ATR calculates the Average True Range as a simple rolling mean of true
// range. Bar 0 has no previous close and contributes no sample, so the first
// defined index is period.
func ATR(bars models.Series, period int) Values {
	apperrors.MustPositive("atr.period", period)

	n := len(bars)
	result := make(Values, n)
	if n < 2 {
		return result
	}

	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	for i := period; i < n; i++ {
		result[i] = optional.Some(mean(tr[i-period+1 : i+1]))
	}

	return result
}

// ATRPercent expresses ATR as a percentage of the close.
func ATRPercent(atr Values, closes []float64) Values {
	result := make(Values, len(atr))
	for i := range atr {
		a, ok := atr.At(i)
		if !ok || closes[i] == 0 {
			continue
		}
		result[i] = optional.Some(a / closes[i] * 100)
	}
	return result
}

// KeltnerResult holds Keltner Channel lines.
type KeltnerResult struct {
	Middle []float64 `json:"middle"`
	Upper  Values    `json:"upper"`
	Lower  Values    `json:"lower"`
}

// KeltnerChannels calculates EMA(close) +/- multiplier*ATR. The middle line
// is always defined; the bands follow the ATR warm-up.
func KeltnerChannels(bars models.Series, closes []float64, period int, multiplier float64) KeltnerResult {
	if multiplier <= 0 {
		panic(apperrors.NewConfigError("keltner.mult", multiplier, "must be positive"))
	}

	n := len(bars)
	ema := EMA(closes, period)
	atr := ATR(bars, period)

	res := KeltnerResult{
		Middle: ema,
		Upper:  make(Values, n),
		Lower:  make(Values, n),
	}
	for i := 0; i < n; i++ {
		a, ok := atr.At(i)
		if !ok {
			continue
		}
		res.Upper[i] = optional.Some(ema[i] + multiplier*a)
		res.Lower[i] = optional.Some(ema[i] - multiplier*a)
	}

	return res
}

// BarColor classifies squeeze momentum against the previous bar.
type BarColor string

const (
	// BarLime is positive momentum that is increasing.
	BarLime BarColor = "lime"
	// BarGreen is positive momentum that is fading.
	BarGreen BarColor = "green"
	// BarRed is negative momentum that is falling further.
	BarRed BarColor = "red"
	// BarMaroon is negative momentum recovering toward zero.
	BarMaroon BarColor = "maroon"
)

// ClassifyBar returns the four-state colour for momentum versus the previous
// bar's momentum. Zero counts as positive.
func ClassifyBar(momentum, prev float64) BarColor {
	if momentum >= 0 {
		if momentum > prev {
			return BarLime
		}
		return BarGreen
	}
	if momentum < prev {
		return BarRed
	}
	return BarMaroon
}

// SqueezePoint is the TTM Squeeze reading of one bar.
type SqueezePoint struct {
	InSqueeze bool     `json:"inSqueeze"`
	Momentum  float64  `json:"momentum"`
	BarColor  BarColor `json:"barColor"`
}

// TTMSqueeze compares Bollinger Bands(period, bbMul) with Keltner Channels
// EMA(period) +/- kcMul*ATR(period). A bar is in a squeeze when both Bollinger
// bands sit strictly inside the Keltner channel. Momentum is the close minus
// the channel midpoint. Points are None until both envelopes are defined.
func TTMSqueeze(bars models.Series, closes []float64, period int, bbMul, kcMul float64) []optional.Option[SqueezePoint] {
	n := len(bars)
	bb := BollingerBands(closes, period, bbMul)
	kc := KeltnerChannels(bars, closes, period, kcMul)

	// The channel midpoint is the EMA, defined at every bar, so the previous
	// momentum is available even on the first defined point.
	momentum := make([]float64, n)
	for i := 0; i < n; i++ {
		momentum[i] = closes[i] - kc.Middle[i]
	}

	result := make([]optional.Option[SqueezePoint], n)
	for i := 1; i < n; i++ {
		bbUpper, ok1 := bb.Upper.At(i)
		bbLower, ok2 := bb.Lower.At(i)
		kcUpper, ok3 := kc.Upper.At(i)
		kcLower, ok4 := kc.Lower.At(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}

		mom := closes[i] - (kcUpper+kcLower)/2
		result[i] = optional.Some(SqueezePoint{
			InSqueeze: bbLower > kcLower && bbUpper < kcUpper,
			Momentum:  mom,
			BarColor:  ClassifyBar(mom, momentum[i-1]),
		})
	}

	return result
}
