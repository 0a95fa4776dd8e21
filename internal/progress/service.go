// Package progress moves assignments through their lifecycle after creation:
// status changes, evaluation and removal.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/pkg/cerr"
)

// maxAttempts bounds how often a mutation is re-applied after losing an
// optimistic version race.
const maxAttempts = 3

type SlotReleaser interface {
	Release(ctx context.Context, reservationID string) error
}

type WorkspaceReleaser interface {
	MarkReleased(ctx context.Context, root, id string) error
}

type Service struct {
	repo       assignment.Repository
	slots      SlotReleaser
	workspaces WorkspaceReleaser
	eventBus   *eventbus.Bus
	now        func() time.Time
}

func NewService(repo assignment.Repository, slots SlotReleaser, workspaces WorkspaceReleaser, eventBus *eventbus.Bus) *Service {
	return &Service{
		repo:       repo,
		slots:      slots,
		workspaces: workspaces,
		eventBus:   eventBus,
		now:        time.Now,
	}
}

func ErrInvalidTransition(from, to assignment.Status) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonInvalidTransition,
		fmt.Sprintf("assignment cannot move from %s to %s", from, to), nil)
}

// mutate loads the assignment, applies fn and writes it back, reloading and
// re-applying when another writer got there first.
func (s *Service) mutate(ctx context.Context, id string, fn func(a *assignment.Assignment) error) (*assignment.Assignment, error) {
	var lastErr error
	for range maxAttempts {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(a); err != nil {
			return nil, err
		}
		a.UpdatedAt = s.now()
		err = s.repo.Update(ctx, a)
		if err == nil {
			return a, nil
		}
		if !cerr.IsReason(err, cerr.ReasonConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// UpdateStatus applies one edge of the status machine. Completing stamps the
// completion date if it is unset. Any terminal status gives back the slot and
// marks the workspace released.
func (s *Service) UpdateStatus(ctx context.Context, id string, next assignment.Status) (*assignment.Assignment, error) {
	if !next.Valid() {
		return nil, cerr.NewValidationError("status", "in", "unknown assignment status")
	}
	var prev assignment.Status
	a, err := s.mutate(ctx, id, func(a *assignment.Assignment) error {
		if !assignment.CanTransition(a.Status, next) {
			return ErrInvalidTransition(a.Status, next)
		}
		prev = a.Status
		a.Status = next
		if next == assignment.StatusCompleted && a.CompletedDate == nil {
			now := s.now()
			a.CompletedDate = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next.IsTerminal() {
		s.release(ctx, a)
	}

	if s.eventBus != nil {
		meta := map[string]string{
			"task_id":      a.TaskID,
			"candidate_id": a.CandidateID,
			"from":         string(prev),
			"to":           string(next),
		}
		s.eventBus.PublishNew(eventbus.EventAssignmentStatusChanged, a.ID, meta)
		if next == assignment.StatusCompleted {
			s.eventBus.PublishNew(eventbus.EventAssignmentCompleted, a.ID, meta)
		}
	}
	slog.InfoContext(ctx, "assignment status changed", "assignment_id", a.ID, "from", prev, "to", next)
	return a, nil
}

// release never fails the caller: the status change is already committed and
// both releases are idempotent, so a later removal can retry them.
func (s *Service) release(ctx context.Context, a *assignment.Assignment) {
	ctx = context.WithoutCancel(ctx)
	if err := s.slots.Release(ctx, a.SlotReservationID); err != nil {
		slog.ErrorContext(ctx, "failed to release workspace slot", "assignment_id", a.ID, "reservation_id", a.SlotReservationID, "error", err)
	}
	if a.Workspace != nil && s.workspaces != nil {
		if err := s.workspaces.MarkReleased(ctx, a.Workspace.Path, a.Workspace.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark workspace released", "assignment_id", a.ID, "workspace_id", a.Workspace.ID, "error", err)
		}
	}
}

// SubmitEvaluation records scores for a completed assignment. The overall
// score is fixed now; a later submission replaces the whole evaluation.
func (s *Service) SubmitEvaluation(ctx context.Context, id string, scores assignment.Scores, comments, evaluatedBy string) (*assignment.Assignment, error) {
	if err := scores.Validate(); err != nil {
		return nil, err
	}
	a, err := s.mutate(ctx, id, func(a *assignment.Assignment) error {
		if a.Status != assignment.StatusCompleted {
			return assignment.ErrNotCompleted(a.ID)
		}
		a.Evaluation = assignment.NewEvaluation(scores, comments, evaluatedBy, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.eventBus != nil {
		s.eventBus.PublishNew(eventbus.EventAssignmentEvaluated, a.ID, map[string]string{
			"candidate_id":  a.CandidateID,
			"overall_score": a.Evaluation.OverallScore.String(),
		})
	}
	return a, nil
}

// Remove cancels an active assignment. Removing one that already ended only
// re-runs the idempotent releases.
func (s *Service) Remove(ctx context.Context, id string) (*assignment.Assignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status.IsTerminal() {
		s.release(ctx, a)
		return a, nil
	}
	return s.UpdateStatus(ctx, id, assignment.StatusCancelled)
}
