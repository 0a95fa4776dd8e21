package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/eventbus"
)

const defaultSweepInterval = 5 * time.Minute

// Dispatcher settles assignments as soon as they complete. A periodic sweep
// catches completions whose event never reached it and closes attempts left
// open by a crash.
type Dispatcher struct {
	engine        *Engine
	eventBus      *eventbus.Bus
	sweepInterval time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithSweepInterval sets how often completed assignments are swept.
func WithSweepInterval(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.sweepInterval = d
		}
	}
}

func NewDispatcher(engine *Engine, eventBus *eventbus.Bus, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{engine: engine, eventBus: eventBus, sweepInterval: defaultSweepInterval}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(64)
	defer d.eventBus.Unsubscribe(subID)

	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	slog.Info("payment dispatcher started", "sweep_interval", d.sweepInterval)
	d.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("payment dispatcher stopped")
			return
		case <-ticker.C:
			d.Sweep(ctx)
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type != eventbus.EventAssignmentCompleted {
				continue
			}
			if _, err := d.engine.Process(ctx, event.ResourceID); err != nil {
				slog.Error("payment dispatcher: settlement failed", "assignment_id", event.ResourceID, "error", err)
			}
		}
	}
}

// Sweep reconciles stale attempts of every completed assignment and settles
// those that never had an attempt. Assignments whose attempts all failed are
// left for an explicit retry.
func (d *Dispatcher) Sweep(ctx context.Context) {
	completed, _, err := d.engine.assignments.List(ctx, assignment.ListFilter{Status: assignment.StatusCompleted})
	if err != nil {
		slog.Error("payment sweep: list completed assignments", "error", err)
		return
	}
	settled := 0
	for _, a := range completed {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.engine.Reconcile(ctx, a.ID); err != nil {
			slog.Warn("payment sweep: reconcile failed", "assignment_id", a.ID, "error", err)
			continue
		}
		attempts, err := d.engine.payments.ListByAssignment(ctx, a.ID)
		if err != nil {
			slog.Warn("payment sweep: list attempts", "assignment_id", a.ID, "error", err)
			continue
		}
		if len(attempts) > 0 {
			continue
		}
		if _, err := d.engine.Process(ctx, a.ID); err != nil {
			slog.Error("payment sweep: settlement failed", "assignment_id", a.ID, "error", err)
			continue
		}
		settled++
	}
	if settled > 0 {
		slog.Info("payment sweep settled missed completions", "settled", settled)
	}
}
