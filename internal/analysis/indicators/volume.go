package indicators

import (
	"market-twin/internal/models"
)

// VWAP calculates the cumulative Volume Weighted Average Price from the start
// of the series. It is never reset between sessions. A bar with zero or
// negative volume is weighted as 1 so that series without volume data still
// produce a typical-price average instead of dividing by zero.
func VWAP(bars models.Series) []float64 {
	n := len(bars)
	if n == 0 {
		return nil
	}
	result := make([]float64, n)

	var cumulativeTPV float64 // Cumulative Typical Price * Volume
	var cumulativeVol float64 // Cumulative Volume

	for i, bar := range bars {
		vol := float64(bar.Volume)
		if vol <= 0 {
			vol = 1
		}
		cumulativeTPV += bar.TypicalPrice() * vol
		cumulativeVol += vol
		result[i] = cumulativeTPV / cumulativeVol
	}

	return result
}
