// Package leaderboard ranks candidates by how well and how punctually they
// complete work.
package leaderboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/task"
)

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "Beginner"
	SkillIntermediate SkillLevel = "Intermediate"
	SkillAdvanced     SkillLevel = "Advanced"
	SkillExpert       SkillLevel = "Expert"
)

var (
	complexityWeight = decimal.RequireFromString("0.6")
	timelinessWeight = decimal.RequireFromString("0.4")

	complexityScores = map[task.Complexity]decimal.Decimal{
		task.ComplexityLow:    decimal.NewFromInt(2),
		task.ComplexityMedium: decimal.RequireFromString("3.5"),
		task.ComplexityHigh:   decimal.NewFromInt(5),
	}
)

// skillThresholds is checked top down; the first row met wins.
var skillThresholds = []struct {
	level        SkillLevel
	minAverage   decimal.Decimal
	minCompleted int
}{
	{SkillExpert, decimal.RequireFromString("4.5"), 5},
	{SkillAdvanced, decimal.NewFromInt(4), 3},
	{SkillIntermediate, decimal.RequireFromString("3.5"), 1},
}

func ComplexityScore(c task.Complexity) decimal.Decimal {
	if s, ok := complexityScores[c]; ok {
		return s
	}
	return complexityScores[task.ComplexityLow]
}

// TimelinessScore grades completion against the due date in whole calendar
// days (UTC): two or more days early 5, one day early 4, on the day 3, one
// day late 2, later than that 1.
func TimelinessScore(due, completed time.Time) decimal.Decimal {
	days := calendarDays(completed, due)
	switch {
	case days >= 2:
		return decimal.NewFromInt(5)
	case days == 1:
		return decimal.NewFromInt(4)
	case days == 0:
		return decimal.NewFromInt(3)
	case days == -1:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// calendarDays is the number of midnights from a to b.
func calendarDays(a, b time.Time) int {
	da := midnight(a)
	db := midnight(b)
	return int(db.Sub(da).Hours() / 24)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssignmentScore is complexity·0.6 + timeliness·0.4 for a completed
// assignment.
func AssignmentScore(a *assignment.Assignment) decimal.Decimal {
	completed := a.UpdatedAt
	if a.CompletedDate != nil {
		completed = *a.CompletedDate
	}
	return ComplexityScore(a.Complexity).Mul(complexityWeight).
		Add(TimelinessScore(a.DueDate, completed).Mul(timelinessWeight))
}

func SkillLevelOf(average decimal.Decimal, completed int) SkillLevel {
	for _, th := range skillThresholds {
		if average.GreaterThanOrEqual(th.minAverage) && completed >= th.minCompleted {
			return th.level
		}
	}
	return SkillBeginner
}

type Stats struct {
	CandidateID    string          `json:"candidate_id"`
	TasksCompleted int             `json:"tasks_completed"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	AverageScore   decimal.Decimal `json:"average_score"`
	SkillLevel     SkillLevel      `json:"skill_level"`
}

// Compute folds one candidate's assignments and completed payments into
// Stats. Non-completed assignments and non-completed payments are ignored.
func Compute(candidateID string, assignments []*assignment.Assignment, payments []*assignment.Payment) *Stats {
	st := &Stats{CandidateID: candidateID, TotalEarned: decimal.Zero, AverageScore: decimal.Zero}

	var scores []decimal.Decimal
	for _, a := range assignments {
		if a.Status != assignment.StatusCompleted {
			continue
		}
		scores = append(scores, AssignmentScore(a))
	}
	st.TasksCompleted = len(scores)
	if len(scores) > 0 {
		st.AverageScore = decimal.Sum(scores[0], scores[1:]...).Div(decimal.NewFromInt(int64(len(scores))))
	}

	for _, p := range payments {
		if p.Status == assignment.PaymentCompleted {
			st.TotalEarned = st.TotalEarned.Add(p.Amount)
		}
	}
	st.SkillLevel = SkillLevelOf(st.AverageScore, st.TasksCompleted)
	return st
}
