package scoring

import (
	"fmt"

	"market-twin/internal/analysis"
)

// AggregateStrength weighs signals by confidence (HIGH=3, MEDIUM=2, LOW=1)
// and maps the dominant side's weight to a tier. Neutral and caution signals
// carry no directional weight but still count toward TotalSignals and
// HighConfidenceCount.
//
// HighConfidenceCount spans every signal regardless of direction, so strong
// opposing signals can lift the tier of the dominant side.
func AggregateStrength(signals []analysis.Signal) analysis.Verdict {
	var bull, bear, highConf int
	for _, s := range signals {
		switch s.Direction {
		case analysis.Bullish:
			bull += s.Confidence.Weight()
		case analysis.Bearish:
			bear += s.Confidence.Weight()
		}
		if s.Confidence == analysis.ConfidenceHigh {
			highConf++
		}
	}

	confirmation := max(bull, bear)
	net := bull - bear
	absNet := net
	if absNet < 0 {
		absNet = -absNet
	}

	tier := toTier(tierLevel(confirmation, highConf, absNet), net)

	return analysis.Verdict{
		Tier:                tier,
		NetScore:            absNet,
		BullishWeight:       bull,
		BearishWeight:       bear,
		HighConfidenceCount: highConf,
		TotalSignals:        len(signals),
		Description:         describe(tier, bull, bear, len(signals)),
	}
}

// tierLevel returns 3 for STRONG, 2 for MODERATE, 1 for WEAK and 0 for no
// call. First match wins.
func tierLevel(confirmation, highConf, absNet int) int {
	switch {
	case (confirmation >= 5 && highConf >= 2) || confirmation >= 7:
		return 3
	case (confirmation >= 3 && highConf >= 1) || confirmation >= 4:
		return 2
	case confirmation >= 2 && absNet >= 2:
		return 1
	default:
		return 0
	}
}

// toTier picks the side from the sign of net. A tie is always WAIT.
func toTier(level, net int) analysis.Tier {
	if level == 0 || net == 0 {
		return analysis.Wait
	}
	if net > 0 {
		return [...]analysis.Tier{analysis.WeakBuy, analysis.ModerateBuy, analysis.StrongBuy}[level-1]
	}
	return [...]analysis.Tier{analysis.WeakSell, analysis.ModerateSell, analysis.StrongSell}[level-1]
}

func describe(tier analysis.Tier, bull, bear, total int) string {
	if tier == analysis.Wait {
		return fmt.Sprintf("No clear edge: bullish weight %d vs bearish weight %d across %d signals", bull, bear, total)
	}
	return fmt.Sprintf("%s: bullish weight %d vs bearish weight %d across %d signals", tier, bull, bear, total)
}
