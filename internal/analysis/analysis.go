// Package analysis provides the value types shared by indicator, pattern and
// signal scoring packages.
package analysis

// Direction is the directional reading of a signal.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
	Caution Direction = "CAUTION"
)

// Confidence grades how much a signal should count.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Weight returns the aggregation weight of the confidence grade.
func (c Confidence) Weight() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Signal is one discrete reading emitted by the rule engine.
type Signal struct {
	Type        string     `json:"type"`
	Direction   Direction  `json:"direction"`
	Confidence  Confidence `json:"confidence"`
	Description string     `json:"description"`
	Value       string     `json:"value,omitempty"`
}

// LevelType represents the type of price level.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// Level represents a support or resistance level.
type Level struct {
	Price      float64   `json:"price"`
	Type       LevelType `json:"type"`
	Touches    int       `json:"touches"`
	FirstTouch int       `json:"firstTouch"`
	LastTouch  int       `json:"lastTouch"`
}

// PatternType names a detected chart pattern.
type PatternType string

const (
	PatternDoubleTop    PatternType = "Double Top"
	PatternDoubleBottom PatternType = "Double Bottom"
)

// Pattern represents a detected chart pattern.
type Pattern struct {
	Type       PatternType `json:"type"`
	Direction  Direction   `json:"direction"`
	Price      float64     `json:"price"`
	StartIndex int         `json:"startIndex"`
	EndIndex   int         `json:"endIndex"`
}

// Tier represents the overall recommendation.
type Tier string

const (
	StrongBuy    Tier = "STRONG BUY"
	ModerateBuy  Tier = "MODERATE BUY"
	WeakBuy      Tier = "WEAK BUY"
	Wait         Tier = "WAIT"
	WeakSell     Tier = "WEAK SELL"
	ModerateSell Tier = "MODERATE SELL"
	StrongSell   Tier = "STRONG SELL"
)

// Rank orders tiers from STRONG SELL (-3) to STRONG BUY (+3).
func (t Tier) Rank() int {
	switch t {
	case StrongBuy:
		return 3
	case ModerateBuy:
		return 2
	case WeakBuy:
		return 1
	case WeakSell:
		return -1
	case ModerateSell:
		return -2
	case StrongSell:
		return -3
	default:
		return 0
	}
}

// Verdict is the aggregated call over a signal list.
type Verdict struct {
	Tier                Tier   `json:"tier"`
	NetScore            int    `json:"netScore"`
	BullishWeight       int    `json:"bullishWeight"`
	BearishWeight       int    `json:"bearishWeight"`
	HighConfidenceCount int    `json:"highConfidenceCount"`
	TotalSignals        int    `json:"totalSignals"`
	Description         string `json:"description"`
}

// Trend is a coarse label of price against its medium-term average.
type Trend string

const (
	TrendUp            Trend = "Trending Up"
	TrendDown          Trend = "Trending Down"
	TrendConsolidating Trend = "Consolidating"
)
