// Package scoring turns finding severities into a bounded risk score.
package scoring

import "truconn/internal/compliance/rules"

const (
	MinScore = 0
	MaxScore = 100
)

// Risk levels shown alongside a score.
const (
	LevelLow      = "LOW"
	LevelModerate = "MODERATE"
	LevelHigh     = "HIGH"
)

// Score sums severity weights and clamps the total to [MinScore, MaxScore].
func Score(severities []rules.Severity) int {
	total := 0
	for _, sev := range severities {
		total += sev.Weight()
		if total >= MaxScore {
			return MaxScore
		}
	}
	return clamp(total)
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Level bands a score: below 30 is low, below 70 moderate, otherwise high.
func Level(score int) string {
	switch {
	case score < 30:
		return LevelLow
	case score < 70:
		return LevelModerate
	default:
		return LevelHigh
	}
}
