package indicators

import (
	apperrors "market-twin/internal/errors"
)

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      []float64 `json:"macd"`
	Signal    []float64 `json:"signal"`
	Histogram []float64 `json:"histogram"`
}

// MACD calculates Moving Average Convergence Divergence.
//
// Because EMA is seeded from the first close, every line is defined from
// index 0; values before the slow period has elapsed carry little weight but
// are not suppressed. The signal line is the EMA of the MACD line itself.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	apperrors.MustPositive("macd.fast", fast)
	apperrors.MustPositive("macd.slow", slow)
	apperrors.MustPositive("macd.signal", signal)

	n := len(closes)
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	macdLine := make([]float64, n)
	for i := 0; i < n; i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMA(macdLine, signal)

	histogram := make([]float64, n)
	for i := 0; i < n; i++ {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: histogram,
	}
}
