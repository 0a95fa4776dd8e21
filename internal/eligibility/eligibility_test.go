package eligibility

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/kazz187/devguild/internal/task"
)

func scores(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		name    string
		history *History
		want    Tier
	}{
		{name: "new candidate", history: &History{}, want: TierBeginner},
		{name: "four completed", history: &History{CompletedCount: 4, Scores: scores(5, 5, 5, 5)}, want: TierBeginner},
		{name: "five completed", history: &History{CompletedCount: 5}, want: TierIntermediate},
		{name: "ten completed high mean", history: &History{CompletedCount: 10, Scores: scores(4.2)}, want: TierAdvanced},
		{name: "ten completed exact four", history: &History{CompletedCount: 10, Scores: scores(4, 4)}, want: TierAdvanced},
		{name: "ten completed low mean", history: &History{CompletedCount: 10, Scores: scores(3.9)}, want: TierIntermediate},
		{name: "ten completed no evaluations", history: &History{CompletedCount: 10}, want: TierIntermediate},
		{name: "nil history", history: nil, want: TierBeginner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierOf(tt.history))
		})
	}
}

func TestIsEligible(t *testing.T) {
	advanced := &History{CompletedCount: 10, Scores: scores(4.2)}
	almost := &History{CompletedCount: 10, Scores: scores(3.9)}
	beginner := &History{CompletedCount: 1}

	tests := []struct {
		name       string
		history    *History
		complexity task.Complexity
		want       bool
	}{
		{"advanced high", advanced, task.ComplexityHigh, true},
		{"advanced medium", advanced, task.ComplexityMedium, true},
		{"advanced low", advanced, task.ComplexityLow, true},
		{"3.9 high", almost, task.ComplexityHigh, false},
		{"3.9 medium", almost, task.ComplexityMedium, true},
		{"3.9 low", almost, task.ComplexityLow, true},
		{"beginner medium", beginner, task.ComplexityMedium, false},
		{"beginner low", beginner, task.ComplexityLow, true},
		{"missing history", nil, task.ComplexityLow, false},
		{"negative count", &History{CompletedCount: -1}, task.ComplexityLow, false},
		{"score out of range", &History{CompletedCount: 12, Scores: scores(7)}, task.ComplexityLow, false},
		{"unknown complexity", advanced, task.Complexity("extreme"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(tt.history, tt.complexity))
		})
	}
}

func TestIsEligible_Monotonic(t *testing.T) {
	// anyone eligible for high is eligible for medium, and medium implies low
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "completed")
		raw := rapid.SliceOf(rapid.IntRange(0, 50)).Draw(rt, "scores")
		h := &History{CompletedCount: n}
		for _, v := range raw {
			h.Scores = append(h.Scores, decimal.New(int64(v), -1))
		}
		if IsEligible(h, task.ComplexityHigh) && !IsEligible(h, task.ComplexityMedium) {
			rt.Fatalf("high without medium for %+v", h)
		}
		if IsEligible(h, task.ComplexityMedium) && !IsEligible(h, task.ComplexityLow) {
			rt.Fatalf("medium without low for %+v", h)
		}
		if !IsEligible(h, task.ComplexityLow) {
			rt.Fatalf("valid history must be eligible for low: %+v", h)
		}
	})
}
