// Package orchestrator turns "give this task to this developer" into an
// active assignment with a provisioned workspace, or into nothing at all.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/devguild/internal/analyzer"
	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/eligibility"
	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/internal/workspace"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/panicerr"
)

type EligibilityChecker interface {
	Check(ctx context.Context, candidateID string, c task.Complexity) (eligibility.Tier, error)
}

type SlotAllocator interface {
	Reserve(ctx context.Context, developerID, taskID string) (*slot.Reservation, error)
	Release(ctx context.Context, reservationID string) error
}

type Analyzer interface {
	Analyze(ctx context.Context, title, description string) *analyzer.RepoAnalysis
}

type Provisioner interface {
	Provision(ctx context.Context, res *slot.Reservation, t *task.Task, a *analyzer.RepoAnalysis) (*workspace.Workspace, error)
	Discard(ctx context.Context, ws *workspace.Workspace) error
}

type Orchestrator struct {
	tasks       task.Repository
	assignments assignment.Repository
	eligibility EligibilityChecker
	slots       SlotAllocator
	analyzer    Analyzer
	provisioner Provisioner
	eventBus    *eventbus.Bus
	now         func() time.Time
}

func New(
	tasks task.Repository,
	assignments assignment.Repository,
	checker EligibilityChecker,
	slots SlotAllocator,
	repoAnalyzer Analyzer,
	provisioner Provisioner,
	eventBus *eventbus.Bus,
) *Orchestrator {
	return &Orchestrator{
		tasks:       tasks,
		assignments: assignments,
		eligibility: checker,
		slots:       slots,
		analyzer:    repoAnalyzer,
		provisioner: provisioner,
		eventBus:    eventBus,
		now:         time.Now,
	}
}

type Result struct {
	Assignment *assignment.Assignment `json:"assignment"`
	Workspace  *workspace.Manifest    `json:"workspace"`
	Tier       eligibility.Tier       `json:"tier"`
	Stages     []Stage                `json:"stages"`
}

// Assign runs the assignment saga for (taskID, candidateID). Either an
// active assignment with a provisioned workspace is returned, or an error
// and every resource taken along the way has been given back.
func (o *Orchestrator) Assign(ctx context.Context, taskID, candidateID string) (*Result, error) {
	s := newSaga()
	res, err := o.assign(ctx, s, taskID, candidateID)
	if err != nil {
		heldResources := len(s.compensations) > 0
		s.rollback(ctx, err)
		if o.eventBus != nil && heldResources {
			o.eventBus.PublishNew(eventbus.EventAssignmentProvisionAbort, taskID, map[string]string{
				"candidate_id": candidateID,
				"reason":       string(cerr.ReasonOf(err)),
			})
		}
		return nil, err
	}
	res.Stages = s.stages
	return res, nil
}

func (o *Orchestrator) assign(ctx context.Context, s *saga, taskID, candidateID string) (*Result, error) {
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	active, err := o.assignments.HasActive(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, assignment.ErrTaskUnavailable(t.ID)
	}

	tier, err := o.eligibility.Check(ctx, candidateID, t.Complexity)
	if err != nil {
		return nil, err
	}
	s.advance(StageEligibilityChecked)

	reservation, err := o.slots.Reserve(ctx, candidateID, t.ID)
	if err != nil {
		return nil, err
	}
	s.onRollback("release slot", func(ctx context.Context) error {
		return o.slots.Release(ctx, reservation.ID)
	})
	s.advance(StageSlotReserved)

	analysis := o.analyzer.Analyze(ctx, t.Title, t.Description)
	s.advance(StageAnalyzed)

	ws, err := panicerr.SafeValue(ctx, func(ctx context.Context) (*workspace.Workspace, error) {
		return o.provisioner.Provision(ctx, reservation, t, analysis)
	})
	if err != nil {
		return nil, cerr.NewReasonError(cerr.Internal, cerr.ReasonProvisioningFailed,
			fmt.Sprintf("failed to provision workspace for task %s", t.ID), err)
	}
	s.onRollback("discard workspace", func(ctx context.Context) error {
		return o.provisioner.Discard(ctx, ws)
	})
	s.advance(StageProvisioned)

	now := o.now()
	a := &assignment.Assignment{
		ID:          ulid.Make().String(),
		TaskID:      t.ID,
		CandidateID: candidateID,
		Complexity:  t.Complexity,
		Status:      assignment.StatusAssigned,
		StartDate:   now,
		DueDate:     assignment.DueDate(now, t.Complexity),
		Workspace: &assignment.WorkspaceRef{
			ID:       ws.ID,
			ServerID: ws.ServerID,
			Path:     ws.Path,
		},
		SlotReservationID: reservation.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.assignments.CreateActive(ctx, a); err != nil {
		return nil, err
	}
	s.onRollback("cancel assignment", func(ctx context.Context) error {
		a.Status = assignment.StatusCancelled
		a.UpdatedAt = o.now()
		return o.assignments.Update(ctx, a)
	})
	s.advance(StagePersisted)

	// A task deleted after the first read must not keep a live assignment.
	// The delete path re-checks for active assignments from its side.
	if _, err := o.tasks.Get(ctx, t.ID); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, cerr.NewReasonError(cerr.FailedPrecondition, cerr.ReasonTaskUnavailable,
				fmt.Sprintf("task %s was deleted during assignment", t.ID), nil)
		}
		slog.WarnContext(ctx, "orchestrator: task re-read failed", "task_id", t.ID, "error", err)
	}

	if o.eventBus != nil {
		o.eventBus.PublishNew(eventbus.EventAssignmentCreated, a.ID, map[string]string{
			"task_id":      t.ID,
			"candidate_id": candidateID,
			"server_id":    ws.ServerID,
			"workspace_id": ws.ID,
		})
	}
	slog.InfoContext(ctx, "orchestrator: assignment created",
		"assignment_id", a.ID,
		"task_id", t.ID,
		"candidate_id", candidateID,
		"tier", tier,
		"server_id", ws.ServerID,
	)
	return &Result{Assignment: a, Workspace: ws.Manifest, Tier: tier}, nil
}
