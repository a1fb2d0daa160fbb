package patterns

import (
	"market-twin/internal/analysis"
	"market-twin/internal/config"
	"market-twin/internal/models"
)

// DoubleTopBottom reports every pair of local highs (lows) whose prices are
// within tolerance of each other, relative to the earlier extremum, and whose
// indexes are more than minGap bars apart. Tops come first, then bottoms;
// within each kind pairs are ordered by start then end index.
//
// Matching is pairwise over extrema, so cost grows quadratically with their
// count. Callers bound the series length.
func DoubleTopBottom(bars models.Series, lookback int, tolerance float64, minGap int) []analysis.Pattern {
	highs, lows := FindExtrema(bars, lookback)

	var patterns []analysis.Pattern
	patterns = append(patterns, pairExtrema(highs, analysis.PatternDoubleTop, analysis.Bearish, tolerance, minGap)...)
	patterns = append(patterns, pairExtrema(lows, analysis.PatternDoubleBottom, analysis.Bullish, tolerance, minGap)...)
	return patterns
}

func pairExtrema(points []Extremum, kind analysis.PatternType, dir analysis.Direction, tolerance float64, minGap int) []analysis.Pattern {
	var patterns []analysis.Pattern
	for i := 0; i < len(points); i++ {
		first := points[i]
		for j := i + 1; j < len(points); j++ {
			second := points[j]
			if second.Index-first.Index <= minGap {
				continue
			}
			if !withinTolerance(first.Price, second.Price, tolerance) {
				continue
			}
			patterns = append(patterns, analysis.Pattern{
				Type:       kind,
				Direction:  dir,
				Price:      (first.Price + second.Price) / 2,
				StartIndex: first.Index,
				EndIndex:   second.Index,
			})
		}
	}
	return patterns
}

// Detector runs level and pattern detection with one parameter set.
type Detector struct {
	cfg config.LevelConfig
}

// NewDetector creates a detector. The config is expected to be validated.
func NewDetector(cfg config.LevelConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Levels returns the support/resistance levels of the series.
func (d *Detector) Levels(bars models.Series) []analysis.Level {
	return SupportResistance(bars, d.cfg.Lookback, d.cfg.TouchThreshold, d.cfg.MinTouches)
}

// Patterns returns the double top/bottom formations of the series.
func (d *Detector) Patterns(bars models.Series) []analysis.Pattern {
	return DoubleTopBottom(bars, d.cfg.PatternLookback, d.cfg.PatternTolerance, d.cfg.PatternMinGap)
}
