package indicators

import (
	"github.com/moznion/go-optional"

	apperrors "market-twin/internal/errors"
)

// RSI calculates the Relative Strength Index from close-to-close deltas.
//
// The gain/loss arrays hold len-1 deltas (bar 0 has no prior close). The
// value at bar i averages the trailing period deltas with a plain mean, so the
// first defined index is period. When the average loss is zero the RSI is 100,
// which includes a perfectly flat window.
func RSI(closes []float64, period int) Values {
	apperrors.MustPositive("rsi.period", period)

	n := len(closes)
	result := make(Values, n)
	if n < 2 {
		return result
	}

	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	for i := period; i < n; i++ {
		avgGain := mean(gains[i-period : i])
		avgLoss := mean(losses[i-period : i])

		if avgLoss == 0 {
			result[i] = optional.Some(100.0)
			continue
		}
		rs := avgGain / avgLoss
		result[i] = optional.Some(100 - (100 / (1 + rs)))
	}

	return result
}

// StochRSIResult holds the smoothed stochastic RSI lines.
type StochRSIResult struct {
	K Values `json:"k"`
	D Values `json:"d"`
}

// StochRSI applies the stochastic oscillator to an RSI sequence:
// raw = 100*(rsi - min)/(max - min) over the trailing period RSI values,
// K = SMA(raw, smoothK), D = SMA(K, smoothD). A flat RSI window reads 50.
func StochRSI(rsi Values, period, smoothK, smoothD int) StochRSIResult {
	apperrors.MustPositive("stochrsi.period", period)
	apperrors.MustPositive("stochrsi.smooth_k", smoothK)
	apperrors.MustPositive("stochrsi.smooth_d", smoothD)

	n := len(rsi)
	raw := make(Values, n)
	window := make([]float64, 0, period)

	for i := period - 1; i < n; i++ {
		window = window[:0]
		for j := i - period + 1; j <= i; j++ {
			if x, ok := rsi.At(j); ok {
				window = append(window, x)
			}
		}
		if len(window) < period {
			continue
		}

		hi, lo := highest(window), lowest(window)
		cur := window[len(window)-1]
		if hi == lo {
			raw[i] = optional.Some(50.0)
		} else {
			raw[i] = optional.Some(100 * (cur - lo) / (hi - lo))
		}
	}

	k := smaDefined(raw, smoothK)
	return StochRSIResult{
		K: k,
		D: smaDefined(k, smoothD),
	}
}
