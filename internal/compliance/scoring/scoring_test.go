package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"truconn/internal/compliance/rules"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		severities []rules.Severity
		want       int
	}{
		{"no findings", nil, 0},
		{"one of each", []rules.Severity{rules.SeverityCritical, rules.SeverityHigh, rules.SeverityMedium, rules.SeverityLow}, 50},
		{"exactly the cap", []rules.Severity{rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical}, 100},
		{"above the cap clamps", []rules.Severity{rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical, rules.SeverityCritical, rules.SeverityHigh}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.severities))
		})
	}
}

func TestScoreMatchesClampedSum(t *testing.T) {
	all := []rules.Severity{rules.SeverityCritical, rules.SeverityHigh, rules.SeverityMedium, rules.SeverityLow}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		sevs := make([]rules.Severity, n)
		sum := 0
		for j := range sevs {
			sevs[j] = all[rng.Intn(len(all))]
			sum += sevs[j].Weight()
		}
		got := Score(sevs)
		assert.Equal(t, min(100, sum), got)
		assert.GreaterOrEqual(t, got, MinScore)
		assert.LessOrEqual(t, got, MaxScore)

		rng.Shuffle(len(sevs), func(a, b int) { sevs[a], sevs[b] = sevs[b], sevs[a] })
		assert.Equal(t, got, Score(sevs), "score must not depend on order")
	}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, LevelLow, Level(0))
	assert.Equal(t, LevelLow, Level(29))
	assert.Equal(t, LevelModerate, Level(30))
	assert.Equal(t, LevelModerate, Level(69))
	assert.Equal(t, LevelHigh, Level(70))
	assert.Equal(t, LevelHigh, Level(100))
}
