package decision

import "TrendGate/internal/domain/models"

// ConditionScore grades the supplied market condition into [0,1]. A nil
// condition scores 0.5 so validation still works without the collaborator.
func ConditionScore(cond *models.MarketCondition) float64 {
	if cond == nil {
		return 0.5
	}

	score := 0.5
	switch cond.Volatility.Level {
	case "low":
		score += 0.15
	case "high":
		score -= 0.2
	}
	switch cond.Volume.Level {
	case "high":
		score += 0.15
	case "low":
		score -= 0.1
	}
	if cond.MarketHours.IsOpen {
		score += 0.2
	} else {
		score -= 0.15
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
