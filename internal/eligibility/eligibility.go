// Package eligibility decides which task complexities a candidate may take
// on, based on their completion and evaluation history.
package eligibility

import (
	"github.com/shopspring/decimal"

	"github.com/kazz187/devguild/internal/task"
)

type Tier string

const (
	TierBeginner     Tier = "beginner"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
)

const (
	advancedMinCompleted     = 10
	intermediateMinCompleted = 5
)

var advancedMinScore = decimal.NewFromInt(4)

// History is what a candidate has done so far. Scores holds the overall
// score of every evaluation they have received.
type History struct {
	CompletedCount int
	Scores         []decimal.Decimal
}

// Valid reports whether h can be trusted for a decision.
func (h *History) Valid() bool {
	if h == nil || h.CompletedCount < 0 {
		return false
	}
	five := decimal.NewFromInt(5)
	for _, s := range h.Scores {
		if s.IsNegative() || s.GreaterThan(five) {
			return false
		}
	}
	return true
}

// MeanScore is the mean evaluation score; zero evaluations give zero.
func (h *History) MeanScore() decimal.Decimal {
	if h == nil || len(h.Scores) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(h.Scores[0], h.Scores[1:]...).Div(decimal.NewFromInt(int64(len(h.Scores))))
}

func TierOf(h *History) Tier {
	if !h.Valid() {
		return TierBeginner
	}
	switch {
	case h.CompletedCount >= advancedMinCompleted && h.MeanScore().GreaterThanOrEqual(advancedMinScore):
		return TierAdvanced
	case h.CompletedCount >= intermediateMinCompleted:
		return TierIntermediate
	default:
		return TierBeginner
	}
}

// IsEligible fails closed: a missing or malformed history, or an unknown
// complexity, is never eligible.
func IsEligible(h *History, c task.Complexity) bool {
	if !h.Valid() {
		return false
	}
	tier := TierOf(h)
	switch c {
	case task.ComplexityHigh:
		return tier == TierAdvanced
	case task.ComplexityMedium:
		return tier == TierAdvanced || tier == TierIntermediate
	case task.ComplexityLow:
		return true
	default:
		return false
	}
}
