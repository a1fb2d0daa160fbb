// Package indicators provides technical indicator calculations over OHLCV
// series.
package indicators

import (
	"github.com/moznion/go-optional"

	apperrors "market-twin/internal/errors"
)

// Values is an indicator sequence aligned to the input bars. A None entry
// means the indicator has no value at that index (warm-up), never zero.
type Values []optional.Option[float64]

// Full wraps a fully defined sequence.
func Full(xs []float64) Values {
	out := make(Values, len(xs))
	for i, x := range xs {
		out[i] = optional.Some(x)
	}
	return out
}

// At returns the value at index i and whether it is defined.
func (v Values) At(i int) (float64, bool) {
	if i < 0 || i >= len(v) || v[i].IsNone() {
		return 0, false
	}
	return v[i].Unwrap(), true
}

// Last returns the most recent value and whether it is defined.
func (v Values) Last() (float64, bool) {
	return v.At(len(v) - 1)
}

// FirstDefined returns the index of the first defined entry, or -1.
func (v Values) FirstDefined() int {
	for i, o := range v {
		if o.IsSome() {
			return i
		}
	}
	return -1
}

// SMA returns the arithmetic mean of the trailing period values. The first
// period-1 entries are None; every entry is None when period exceeds the
// input length.
func SMA(values []float64, period int) Values {
	apperrors.MustPositive("sma.period", period)

	result := make(Values, len(values))
	for i := period - 1; i < len(values); i++ {
		result[i] = optional.Some(mean(values[i-period+1 : i+1]))
	}
	return result
}

// EMA returns the exponential moving average seeded with the first raw
// value, so it is defined at every index:
//
//	ema[0] = v[0]
//	ema[i] = v[i]*k + ema[i-1]*(1-k), k = 2/(period+1)
//
// This differs from the SMA-seeded EMA found in most literature; charts built
// on this engine depend on the raw seed.
func EMA(values []float64, period int) []float64 {
	apperrors.MustPositive("ema.period", period)

	if len(values) == 0 {
		return nil
	}

	result := make([]float64, len(values))
	k := 2.0 / float64(period+1)

	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = values[i]*k + result[i-1]*(1-k)
	}

	return result
}

// smaDefined averages the trailing period entries of an optional sequence,
// defined only where the whole window is defined.
func smaDefined(values Values, period int) Values {
	result := make(Values, len(values))
	for i := period - 1; i < len(values); i++ {
		var total float64
		complete := true
		for j := i - period + 1; j <= i; j++ {
			x, ok := values.At(j)
			if !ok {
				complete = false
				break
			}
			total += x
		}
		if complete {
			result[i] = optional.Some(total / float64(period))
		}
	}
	return result
}
