// Package payment settles completed assignments through an external
// processor in two phases: an order is created, then captured. Every attempt
// that starts also ends, either completed or failed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
)

var amounts = map[task.Complexity]decimal.Decimal{
	task.ComplexityLow:    decimal.NewFromInt(100),
	task.ComplexityMedium: decimal.NewFromInt(250),
	task.ComplexityHigh:   decimal.NewFromInt(500),
}

// AmountFor is the payout for a complexity tier.
func AmountFor(c task.Complexity) (decimal.Decimal, error) {
	amount, ok := amounts[c]
	if !ok {
		return decimal.Zero, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("no payout defined for complexity %q", c), nil)
	}
	return amount, nil
}

// Processor is the external payment provider.
type Processor interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (orderID string, err error)
	CaptureOrder(ctx context.Context, orderID string) (captured bool, err error)
	// OrderCaptured looks up an existing order without changing it.
	OrderCaptured(ctx context.Context, orderID string) (captured bool, err error)
}

type Engine struct {
	assignments assignment.Repository
	payments    assignment.PaymentRepository
	processor   Processor
	currency    string
	timeout     time.Duration
	eventBus    *eventbus.Bus
	now         func() time.Time
}

func NewEngine(
	assignments assignment.Repository,
	payments assignment.PaymentRepository,
	processor Processor,
	currency string,
	timeout time.Duration,
	eventBus *eventbus.Bus,
) *Engine {
	return &Engine{
		assignments: assignments,
		payments:    payments,
		processor:   processor,
		currency:    currency,
		timeout:     timeout,
		eventBus:    eventBus,
		now:         time.Now,
	}
}

func errProcessingFailed(p *assignment.Payment, cause error) error {
	return cerr.NewReasonError(cerr.Unavailable, cerr.ReasonPaymentProcessingFailed,
		fmt.Sprintf("payment attempt %d for assignment %s failed", p.Attempt, p.AssignmentID), cause)
}

// Process settles a completed assignment. The amount is fixed by the first
// attempt; later attempts after a failure reuse it. A processor failure is
// recorded as a FAILED attempt before the error is returned.
func (e *Engine) Process(ctx context.Context, assignmentID string) (*assignment.Payment, error) {
	a, err := e.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != assignment.StatusCompleted {
		return nil, assignment.ErrNotCompleted(a.ID)
	}

	amount, err := e.amount(ctx, a)
	if err != nil {
		return nil, err
	}
	now := e.now()
	p := &assignment.Payment{
		ID:           ulid.Make().String(),
		AssignmentID: a.ID,
		CandidateID:  a.CandidateID,
		Status:       assignment.PaymentPending,
		Amount:       amount,
		Currency:     e.currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.payments.CreateAttempt(ctx, p); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	orderID, err := e.processor.CreateOrder(callCtx, p.Amount, p.Currency, fmt.Sprintf("Assignment %s (task %s)", a.ID, a.TaskID))
	if err != nil {
		return e.fail(ctx, p, fmt.Errorf("create order: %w", err))
	}

	p.Status = assignment.PaymentProcessing
	p.TransactionID = orderID
	p.UpdatedAt = e.now()
	if err := e.payments.Update(ctx, p); err != nil {
		return e.fail(ctx, p, fmt.Errorf("record order: %w", err))
	}

	captured, err := e.processor.CaptureOrder(callCtx, orderID)
	if err != nil {
		return e.fail(ctx, p, fmt.Errorf("capture order: %w", err))
	}
	if !captured {
		return e.fail(ctx, p, fmt.Errorf("order %s was not captured", orderID))
	}

	if err := e.complete(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// complete records a captured attempt. The write ignores cancellation of ctx
// so a capture is never left looking open.
func (e *Engine) complete(ctx context.Context, p *assignment.Payment) error {
	processed := e.now()
	p.Status = assignment.PaymentCompleted
	p.ProcessedDate = &processed
	p.UpdatedAt = processed
	if err := e.payments.Update(context.WithoutCancel(ctx), p); err != nil {
		slog.ErrorContext(ctx, "captured payment could not be recorded", "payment_id", p.ID, "transaction_id", p.TransactionID, "error", err)
		return err
	}

	if e.eventBus != nil {
		e.eventBus.PublishNew(eventbus.EventPaymentCompleted, p.ID, map[string]string{
			"assignment_id":  p.AssignmentID,
			"candidate_id":   p.CandidateID,
			"amount":         p.Amount.StringFixed(2),
			"currency":       p.Currency,
			"transaction_id": p.TransactionID,
		})
	}
	slog.InfoContext(ctx, "payment completed",
		"payment_id", p.ID,
		"assignment_id", p.AssignmentID,
		"attempt", p.Attempt,
		"amount", p.Amount.StringFixed(2),
	)
	return nil
}

// Reconcile closes attempts of an assignment that were left pending or
// processing by a crash or a lost write. Attempts touched within the
// processor timeout may still be in flight and are left alone. A processing
// attempt is settled from the processor's view of its order; a pending one
// never got as far as a capture and is failed.
func (e *Engine) Reconcile(ctx context.Context, assignmentID string) ([]*assignment.Payment, error) {
	if _, err := e.assignments.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	attempts, err := e.payments.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	cutoff := e.now().Add(-e.timeout)
	closed := []*assignment.Payment{}
	for _, p := range attempts {
		if p.Status != assignment.PaymentPending && p.Status != assignment.PaymentProcessing {
			continue
		}
		if p.UpdatedAt.After(cutoff) {
			continue
		}
		if p.Status == assignment.PaymentPending || p.TransactionID == "" {
			if err := e.markFailed(ctx, p, errors.New("attempt abandoned before an order was recorded")); err != nil {
				return closed, err
			}
			closed = append(closed, p)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		captured, err := e.processor.OrderCaptured(callCtx, p.TransactionID)
		cancel()
		if err != nil {
			return closed, errProcessingFailed(p, fmt.Errorf("look up order %s: %w", p.TransactionID, err))
		}
		if captured {
			if err := e.complete(ctx, p); err != nil {
				return closed, err
			}
		} else if err := e.markFailed(ctx, p, fmt.Errorf("order %s was not captured", p.TransactionID)); err != nil {
			return closed, err
		}
		closed = append(closed, p)
	}
	slog.InfoContext(ctx, "payments reconciled", "assignment_id", assignmentID, "closed", len(closed))
	return closed, nil
}

func (e *Engine) amount(ctx context.Context, a *assignment.Assignment) (decimal.Decimal, error) {
	previous, err := e.payments.ListByAssignment(ctx, a.ID)
	if err != nil {
		return decimal.Zero, err
	}
	var first *assignment.Payment
	for _, p := range previous {
		if first == nil || p.Attempt < first.Attempt {
			first = p
		}
	}
	if first != nil {
		return first.Amount, nil
	}
	return AmountFor(a.Complexity)
}

// fail records the FAILED state and returns the processing error for cause.
func (e *Engine) fail(ctx context.Context, p *assignment.Payment, cause error) (*assignment.Payment, error) {
	if err := e.markFailed(ctx, p, cause); err != nil {
		return nil, errProcessingFailed(p, err)
	}
	return p, errProcessingFailed(p, cause)
}

// markFailed writes the terminal FAILED state even when ctx is already done,
// so no attempt is left pending or processing.
func (e *Engine) markFailed(ctx context.Context, p *assignment.Payment, cause error) error {
	ctx = context.WithoutCancel(ctx)
	processed := e.now()
	p.Status = assignment.PaymentFailed
	p.ProcessedDate = &processed
	p.FailureReason = cause.Error()
	p.UpdatedAt = processed
	if err := e.payments.Update(ctx, p); err != nil {
		slog.ErrorContext(ctx, "failed payment could not be recorded", "payment_id", p.ID, "error", err, "cause", cause)
		return err
	}
	if e.eventBus != nil {
		e.eventBus.PublishNew(eventbus.EventPaymentFailed, p.ID, map[string]string{
			"assignment_id": p.AssignmentID,
			"candidate_id":  p.CandidateID,
			"attempt":       fmt.Sprint(p.Attempt),
		})
	}
	slog.WarnContext(ctx, "payment failed", "payment_id", p.ID, "assignment_id", p.AssignmentID, "attempt", p.Attempt, "cause", cause)
	return nil
}
