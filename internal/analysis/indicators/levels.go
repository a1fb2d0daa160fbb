package indicators

import (
	"github.com/moznion/go-optional"

	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
)

// FibonacciLevels represents Fibonacci retracement levels measured down from
// the swing high of a window.
type FibonacciLevels struct {
	SwingHigh float64 `json:"swingHigh"`
	SwingLow  float64 `json:"swingLow"`
	IsUptrend bool    `json:"isUptrend"`
	Level236  float64 `json:"level236"` // 23.6%
	Level382  float64 `json:"level382"` // 38.2%
	Level500  float64 `json:"level500"` // 50%
	Level618  float64 `json:"level618"` // 61.8%
	Level786  float64 `json:"level786"` // 78.6%
}

// Levels returns the retracement prices from shallowest to deepest.
func (f FibonacciLevels) Levels() []float64 {
	return []float64{f.Level236, f.Level382, f.Level500, f.Level618, f.Level786}
}

// Fibonacci finds the swing high/low over the trailing window bars and
// calculates retracement levels from them. It returns None when the series is
// shorter than the window.
func Fibonacci(bars models.Series, window int) optional.Option[FibonacciLevels] {
	apperrors.MustPositive("fib.window", window)

	if len(bars) < window {
		return optional.None[FibonacciLevels]()
	}

	recent := bars.Tail(window)
	highs := recent.Highs()
	lows := recent.Lows()

	// Trend direction follows whichever extreme came first.
	highIdx := highestIndex(highs)
	lowIdx := lowestIndex(lows)

	return optional.Some(CalculateFibonacci(highs[highIdx], lows[lowIdx], lowIdx < highIdx))
}

// CalculateFibonacci calculates Fibonacci levels from given swing points.
func CalculateFibonacci(swingHigh, swingLow float64, isUptrend bool) FibonacciLevels {
	diff := swingHigh - swingLow

	return FibonacciLevels{
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
		IsUptrend: isUptrend,
		Level236:  swingHigh - diff*0.236,
		Level382:  swingHigh - diff*0.382,
		Level500:  swingHigh - diff*0.500,
		Level618:  swingHigh - diff*0.618,
		Level786:  swingHigh - diff*0.786,
	}
}

// highestIndex returns the index of the first highest value in a slice.
func highestIndex(values []float64) int {
	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx
}

// lowestIndex returns the index of the first lowest value in a slice.
func lowestIndex(values []float64) int {
	idx := 0
	for i, v := range values {
		if v < values[idx] {
			idx = i
		}
	}
	return idx
}
