package models

import (
	"fmt"
	"math"

	apperrors "market-twin/internal/errors"
)

// Adjustment records one substitution made while sanitising a bar.
type Adjustment struct {
	Index int     `json:"index"`
	Field string  `json:"field"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("bar %d: %s %g -> %g", a.Index, a.Field, a.From, a.To)
}

// Validate checks the series-level invariants: at least one bar and
// non-decreasing timestamps.
func Validate(s Series) error {
	if len(s) == 0 {
		return apperrors.ErrEmptySeries
	}
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp.Before(s[i-1].Timestamp) {
			return apperrors.NewDataError("series", "", i,
				fmt.Sprintf("timestamp %s precedes %s", s[i].Timestamp.Format("2006-01-02T15:04:05"), s[i-1].Timestamp.Format("2006-01-02T15:04:05")),
				apperrors.ErrNonMonotonic)
		}
	}
	return nil
}

// Sanitize returns a copy of s with malformed bars repaired:
//
//   - missing (NaN, infinite or non-positive) close: previous close, or open on the first bar
//   - missing open, high or low: close
//   - negative volume: 1
//   - high/low widened to contain open and close
//
// Every substitution is reported. A first bar with neither close nor open is
// unrecoverable.
func Sanitize(s Series) (Series, []Adjustment, error) {
	out := make(Series, len(s))
	var adj []Adjustment

	for i, b := range s {
		if missing(b.Close) {
			var repl float64
			switch {
			case i > 0:
				repl = out[i-1].Close
			case !missing(b.Open):
				repl = b.Open
			default:
				return nil, adj, apperrors.NewDataError("bar", "", i, "close and open both missing", apperrors.ErrMalformedBar)
			}
			adj = append(adj, Adjustment{Index: i, Field: "close", From: b.Close, To: repl})
			b.Close = repl
		}
		if missing(b.Open) {
			adj = append(adj, Adjustment{Index: i, Field: "open", From: b.Open, To: b.Close})
			b.Open = b.Close
		}
		if missing(b.High) {
			adj = append(adj, Adjustment{Index: i, Field: "high", From: b.High, To: b.Close})
			b.High = b.Close
		}
		if missing(b.Low) {
			adj = append(adj, Adjustment{Index: i, Field: "low", From: b.Low, To: b.Close})
			b.Low = b.Close
		}
		if b.Volume < 0 {
			adj = append(adj, Adjustment{Index: i, Field: "volume", From: float64(b.Volume), To: 1})
			b.Volume = 1
		}

		top := math.Max(b.Open, b.Close)
		bottom := math.Min(b.Open, b.Close)
		if b.High < top {
			adj = append(adj, Adjustment{Index: i, Field: "high", From: b.High, To: top})
			b.High = top
		}
		if b.Low > bottom {
			adj = append(adj, Adjustment{Index: i, Field: "low", From: b.Low, To: bottom})
			b.Low = bottom
		}

		out[i] = b
	}

	return out, adj, nil
}

func missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v <= 0
}
