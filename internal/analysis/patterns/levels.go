// Package patterns detects support/resistance levels and double top/bottom
// formations from local price extrema.
package patterns

import (
	"market-twin/internal/analysis"
	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
)

// Extremum is a local high or low of the series.
type Extremum struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
}

// FindExtrema returns local highs and lows in index order.
//
// Bar i is a local high when its high strictly exceeds every other high in
// [i-lookback, i+lookback], clipped to the series; lows mirror this. The
// first and last bars are never extrema since they lack a neighbour on one
// side, and ties disqualify both bars.
func FindExtrema(bars models.Series, lookback int) (highs, lows []Extremum) {
	apperrors.MustPositive("levels.lookback", lookback)

	n := len(bars)
	for i := 1; i < n-1; i++ {
		from := max(0, i-lookback)
		to := min(n-1, i+lookback)

		isHigh, isLow := true, true
		for j := from; j <= to && (isHigh || isLow); j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}

		if isHigh {
			highs = append(highs, Extremum{Index: i, Price: bars[i].High})
		}
		if isLow {
			lows = append(lows, Extremum{Index: i, Price: bars[i].Low})
		}
	}

	return highs, lows
}

// SupportResistance clusters local extrema into price levels. Highs form
// resistance and lows form support. A candidate within touchThreshold of an
// existing level's price (relative to that price) adds a touch; otherwise it
// opens a new level at its own price. Only levels with at least minTouches
// touches are returned, resistance first, each kind in first-touch order.
func SupportResistance(bars models.Series, lookback int, touchThreshold float64, minTouches int) []analysis.Level {
	highs, lows := FindExtrema(bars, lookback)

	var levels []analysis.Level
	levels = append(levels, clusterExtrema(highs, analysis.LevelResistance, touchThreshold, minTouches)...)
	levels = append(levels, clusterExtrema(lows, analysis.LevelSupport, touchThreshold, minTouches)...)
	return levels
}

// clusterExtrema groups nearby extrema into single levels, scanning in
// index order.
func clusterExtrema(points []Extremum, levelType analysis.LevelType, threshold float64, minTouches int) []analysis.Level {
	if len(points) == 0 {
		return nil
	}

	var clusters []analysis.Level
	for _, p := range points {
		merged := false
		for k := range clusters {
			if withinTolerance(clusters[k].Price, p.Price, threshold) {
				clusters[k].Touches++
				clusters[k].LastTouch = p.Index
				merged = true
				break
			}
		}
		if !merged {
			clusters = append(clusters, analysis.Level{
				Price:      p.Price,
				Type:       levelType,
				Touches:    1,
				FirstTouch: p.Index,
				LastTouch:  p.Index,
			})
		}
	}

	var levels []analysis.Level
	for _, c := range clusters {
		if c.Touches >= minTouches {
			levels = append(levels, c)
		}
	}
	return levels
}

// withinTolerance reports whether price lies within tol of ref, relative to
// ref.
func withinTolerance(ref, price, tol float64) bool {
	if ref == 0 {
		return price == 0
	}
	diff := price - ref
	if diff < 0 {
		diff = -diff
	}
	return diff/ref <= tol
}
