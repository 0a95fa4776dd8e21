package orchestrator

import (
	"context"
	"log/slog"
)

type Stage string

const (
	StageRequested          Stage = "REQUESTED"
	StageEligibilityChecked Stage = "ELIGIBILITY_CHECKED"
	StageSlotReserved       Stage = "SLOT_RESERVED"
	StageAnalyzed           Stage = "ANALYZED"
	StageProvisioned        Stage = "PROVISIONED"
	StagePersisted          Stage = "PERSISTED"
	StageReleased           Stage = "RELEASED"
)

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// saga records the stages an assignment passed through and the undo steps
// registered along the way.
type saga struct {
	stages        []Stage
	compensations []compensation
}

func newSaga() *saga {
	return &saga{stages: []Stage{StageRequested}}
}

func (s *saga) advance(stage Stage) {
	s.stages = append(s.stages, stage)
}

func (s *saga) current() Stage {
	return s.stages[len(s.stages)-1]
}

func (s *saga) onRollback(name string, fn func(ctx context.Context) error) {
	s.compensations = append(s.compensations, compensation{name: name, fn: fn})
}

// rollback runs compensations newest first. It keeps going past failures and
// is detached from ctx cancellation so a dropped request still frees its slot.
func (s *saga) rollback(ctx context.Context, cause error) {
	ctx = context.WithoutCancel(ctx)
	failedAt := s.current()
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "orchestrator: compensation failed", "step", c.name, "failed_at", failedAt, "error", err)
		}
	}
	s.compensations = nil
	s.advance(StageReleased)
	slog.WarnContext(ctx, "orchestrator: assignment rolled back", "failed_at", failedAt, "cause", cause)
}
