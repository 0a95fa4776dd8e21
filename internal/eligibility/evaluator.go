package eligibility

import (
	"context"
	"fmt"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Evaluator struct {
	assignments assignment.Repository
}

func NewEvaluator(assignments assignment.Repository) *Evaluator {
	return &Evaluator{assignments: assignments}
}

// History collects a candidate's completed count and evaluation scores.
func (e *Evaluator) History(ctx context.Context, candidateID string) (*History, error) {
	list, _, err := e.assignments.List(ctx, assignment.ListFilter{CandidateID: candidateID})
	if err != nil {
		return nil, err
	}
	h := &History{}
	for _, a := range list {
		if a.Status == assignment.StatusCompleted {
			h.CompletedCount++
		}
		if a.Evaluation != nil {
			h.Scores = append(h.Scores, a.Evaluation.OverallScore)
		}
	}
	return h, nil
}

// Check returns a CANDIDATE_INELIGIBLE error unless candidateID may take a
// task of complexity c.
func (e *Evaluator) Check(ctx context.Context, candidateID string, c task.Complexity) (Tier, error) {
	h, err := e.History(ctx, candidateID)
	if err != nil {
		return "", err
	}
	tier := TierOf(h)
	if !IsEligible(h, c) {
		return tier, cerr.NewReasonError(cerr.PermissionDenied, cerr.ReasonCandidateIneligible,
			fmt.Sprintf("%s candidates cannot take %s complexity tasks", tier, c), nil)
	}
	return tier, nil
}
