package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"market-twin/internal/models"
)

// barGen generates valid bar data with realistic OHLCV values
func barGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Bar{}), map[string]gopter.Gen{
		"Timestamp": gen.TimeRange(time.Now().Add(-365*24*time.Hour), time.Hour),
		"Open":      gen.Float64Range(100.0, 1000.0),
		"High":      gen.Float64Range(100.0, 1000.0),
		"Low":       gen.Float64Range(100.0, 1000.0),
		"Close":     gen.Float64Range(100.0, 1000.0),
		"Volume":    gen.Int64Range(0, 10000000),
	}).Map(fixBar)
}

// fixBar enforces positive prices and the OHLC envelope.
func fixBar(b models.Bar) models.Bar {
	if b.Open <= 0 {
		b.Open = 100.0
	}
	if b.Close <= 0 {
		b.Close = 100.0
	}
	b.High = math.Max(b.High, math.Max(b.Open, b.Close))
	b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
	if b.Low <= 0 {
		b.Low = math.Min(b.Open, b.Close)
	}
	return b
}

// seriesGen generates an ordered series of valid bars
func seriesGen(minLen, maxLen int) gopter.Gen {
	return gen.IntRange(minLen, maxLen).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), barGen())
	}, reflect.TypeOf([]models.Bar{})).Map(func(bars []models.Bar) models.Series {
		start := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
		for i := range bars {
			bars[i].Timestamp = start.Add(time.Duration(i) * time.Hour)
			bars[i] = fixBar(bars[i])
		}
		return models.Series(bars)
	})
}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxShrinkCount = 0
	return gopter.NewProperties(parameters)
}

func TestProperty_SMAWarmup(t *testing.T) {
	properties := newProperties()

	properties.Property("SMA at period-1 equals the mean of the first period closes", prop.ForAll(
		func(series models.Series, period int) bool {
			closes := series.Closes()
			sma := SMA(closes, period)
			if len(sma) != len(closes) {
				return false
			}

			if period > len(closes) {
				return sma.FirstDefined() == -1
			}

			for i := 0; i < period-1; i++ {
				if sma[i].IsSome() {
					return false
				}
			}
			v, ok := sma.At(period - 1)
			return ok && v == mean(closes[:period])
		},
		seriesGen(1, 60),
		gen.IntRange(1, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_EMASeed(t *testing.T) {
	properties := newProperties()

	properties.Property("EMA has input length and is seeded with the first value", prop.ForAll(
		func(series models.Series, period int) bool {
			closes := series.Closes()
			ema := EMA(closes, period)
			return len(ema) == len(closes) && ema[0] == closes[0]
		},
		seriesGen(1, 60),
		gen.IntRange(1, 80),
	))

	properties.TestingRun(t)
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(series models.Series) bool {
			rsi := RSI(series.Closes(), 14)
			for i := range rsi {
				v, ok := rsi.At(i)
				if !ok {
					if i >= 14 {
						return false
					}
					continue
				}
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		seriesGen(2, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_StochRSIWithinBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("Stochastic RSI %K and %D are within [0, 100]", prop.ForAll(
		func(series models.Series) bool {
			res := StochRSI(RSI(series.Closes(), 14), 14, 3, 3)
			for _, line := range []Values{res.K, res.D} {
				for i := range line {
					if v, ok := line.At(i); ok && (v < -1e-9 || v > 100+1e-9) {
						return false
					}
				}
			}
			return true
		},
		seriesGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_MACDHistogramIdentity(t *testing.T) {
	properties := newProperties()

	properties.Property("histogram equals macd minus signal at every index", prop.ForAll(
		func(series models.Series) bool {
			res := MACD(series.Closes(), 12, 26, 9)
			for i := range res.Histogram {
				if res.Histogram[i] != res.MACD[i]-res.Signal[i] {
					return false
				}
			}
			return len(res.Histogram) == len(series)
		},
		seriesGen(1, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_BollingerOrdering(t *testing.T) {
	properties := newProperties()

	properties.Property("upper >= middle >= lower whenever defined", prop.ForAll(
		func(series models.Series) bool {
			bb := BollingerBands(series.Closes(), 20, 2)
			for i := range bb.Middle {
				m, ok := bb.Middle.At(i)
				if !ok {
					continue
				}
				u, _ := bb.Upper.At(i)
				l, _ := bb.Lower.At(i)
				if u < m || m < l {
					return false
				}
			}
			return true
		},
		seriesGen(1, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_VWAPWithinTypicalRange(t *testing.T) {
	properties := newProperties()

	properties.Property("VWAP stays within the running typical price range", prop.ForAll(
		func(series models.Series) bool {
			vwap := VWAP(series)
			lo, hi := math.Inf(1), math.Inf(-1)
			for i, bar := range series {
				tp := bar.TypicalPrice()
				lo = math.Min(lo, tp)
				hi = math.Max(hi, tp)

				const eps = 1e-9
				if vwap[i] < lo-eps*lo || vwap[i] > hi+eps*hi {
					return false
				}
			}
			return true
		},
		seriesGen(1, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_ATRNonNegative(t *testing.T) {
	properties := newProperties()

	properties.Property("ATR is non-negative and defined from index period", prop.ForAll(
		func(series models.Series) bool {
			atr := ATR(series, 14)
			for i := range atr {
				v, ok := atr.At(i)
				if ok != (i >= 14) {
					return false
				}
				if ok && v < 0 {
					return false
				}
			}
			return true
		},
		seriesGen(1, 60),
	))

	properties.TestingRun(t)
}
