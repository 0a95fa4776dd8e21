package assignment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/kazz187/devguild/internal/task"
)

func TestDueDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		complexity task.Complexity
		want       time.Time
	}{
		{complexity: task.ComplexityLow, want: time.Date(2024, 1, 4, 9, 30, 0, 0, time.UTC)},
		{complexity: task.ComplexityMedium, want: time.Date(2024, 1, 6, 9, 30, 0, 0, time.UTC)},
		{complexity: task.ComplexityHigh, want: time.Date(2024, 1, 11, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.complexity), func(t *testing.T) {
			assert.Equal(t, tt.want, DueDate(start, tt.complexity))
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusAssigned, StatusCompleted, false},
		{StatusAssigned, StatusFailed, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusAssigned, false},
		{StatusFailed, StatusCompleted, false},
		{StatusInProgress, StatusAssigned, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	all := []Status{StatusAssigned, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled}
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.SampledFrom([]Status{StatusCompleted, StatusFailed, StatusCancelled}).Draw(rt, "from")
		to := rapid.SampledFrom(all).Draw(rt, "to")
		if CanTransition(from, to) {
			rt.Fatalf("terminal %s must not move to %s", from, to)
		}
	})
}

func TestScoresOverall(t *testing.T) {
	all := func(v float64) Scores {
		return Scores{v, v, v, v, v, v, v, v, v, v}
	}
	tests := []struct {
		name   string
		scores Scores
		want   string
	}{
		{name: "all fives", scores: all(5), want: "5"},
		{name: "all zeros", scores: all(0), want: "0"},
		{name: "mixed", scores: Scores{5, 4, 3, 2, 1, 0, 5, 4, 3, 4}, want: "3.1"},
		{name: "fractional", scores: Scores{4.5, 4.5, 4.5, 4.5, 4.5, 4, 4, 4, 4, 4.75}, want: "4.325"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.scores.Overall()
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "4.275", want: "4.28"},
		{in: "4.125", want: "4.13"},
		{in: "4.124", want: "4.12"},
		{in: "5", want: "5.00"},
		{in: "0", want: "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundScore(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestScoresValidate(t *testing.T) {
	assert.NoError(t, Scores{5, 0, 1, 2, 3, 4, 5, 0, 1, 2}.Validate())
	assert.Error(t, Scores{Speed: 5.1}.Validate())
	assert.Error(t, Scores{Collaboration: -0.5}.Validate())
}

func TestScoresOverall_WithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		draw := func(name string) float64 {
			return float64(rapid.IntRange(0, 20).Draw(rt, name)) / 4
		}
		s := Scores{
			draw("speed"), draw("accuracy"), draw("communication"), draw("problem_solving"), draw("code_quality"),
			draw("independence"), draw("alignment"), draw("efficiency"), draw("initiative"), draw("collaboration"),
		}
		o := s.Overall()
		if o.LessThan(decimal.Zero) || o.GreaterThan(decimal.NewFromInt(5)) {
			rt.Fatalf("overall %s out of range", o)
		}
	})
}

func TestCheckPaymentUpdate(t *testing.T) {
	amount := decimal.NewFromInt(250)
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		amount  decimal.Decimal
		wantErr bool
	}{
		{name: "pending to processing", from: PaymentPending, to: PaymentProcessing, amount: amount},
		{name: "processing to completed", from: PaymentProcessing, to: PaymentCompleted, amount: amount},
		{name: "pending to failed", from: PaymentPending, to: PaymentFailed, amount: amount},
		{name: "completed to failed", from: PaymentCompleted, to: PaymentFailed, amount: amount, wantErr: true},
		{name: "failed to processing", from: PaymentFailed, to: PaymentProcessing, amount: amount, wantErr: true},
		{name: "amount changed", from: PaymentPending, to: PaymentProcessing, amount: decimal.NewFromInt(100), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPaymentUpdate(&Payment{Status: tt.from, Amount: amount}, &Payment{Status: tt.to, Amount: tt.amount})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
