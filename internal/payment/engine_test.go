package payment_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/devguild/internal/assignment"
	assignmentrepo "github.com/kazz187/devguild/internal/assignment/repositoryimpl"
	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/payment"
	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

type fakeProcessor struct {
	mu          sync.Mutex
	createErr   []error
	captureErr  []error
	notCaptured bool
	block       bool
	orders      int
	amounts     []decimal.Decimal
	captured    map[string]bool
	lookupErr   error
}

func (f *fakeProcessor) CreateOrder(ctx context.Context, amount decimal.Decimal, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	if len(f.createErr) > 0 {
		err := f.createErr[0]
		f.createErr = f.createErr[1:]
		if err != nil {
			return "", err
		}
	}
	f.orders++
	return fmt.Sprintf("ORDER-%d", f.orders), nil
}

func (f *fakeProcessor) CaptureOrder(ctx context.Context, _ string) (bool, error) {
	f.mu.Lock()
	block := f.block
	var err error
	if len(f.captureErr) > 0 {
		err = f.captureErr[0]
		f.captureErr = f.captureErr[1:]
	}
	notCaptured := f.notCaptured
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return !notCaptured, nil
}

func (f *fakeProcessor) OrderCaptured(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.captured[orderID], nil
}

type fixture struct {
	assignments *assignmentrepo.YAMLRepository
	payments    *assignmentrepo.YAMLPaymentRepository
	processor   *fakeProcessor
	bus         *eventbus.Bus
	engine      *payment.Engine
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		assignments: assignmentrepo.NewYAMLRepository(s),
		payments:    assignmentrepo.NewYAMLPaymentRepository(s),
		processor:   &fakeProcessor{},
		bus:         eventbus.New(),
	}
	f.engine = payment.NewEngine(f.assignments, f.payments, f.processor, "USD", timeout, f.bus)
	return f
}

func (f *fixture) addAssignment(t *testing.T, id string, c task.Complexity, status assignment.Status) {
	t.Helper()
	now := time.Now()
	a := &assignment.Assignment{
		ID: id, TaskID: "task-" + id, CandidateID: "dev1", Complexity: c,
		Status: status, StartDate: now, DueDate: assignment.DueDate(now, c),
	}
	if status == assignment.StatusCompleted {
		a.CompletedDate = &now
	}
	require.NoError(t, f.assignments.CreateActive(context.Background(), a))
}

// seedAttempt leaves an open attempt behind, as a crash between writes would.
func (f *fixture) seedAttempt(t *testing.T, assignmentID string, status assignment.PaymentStatus, orderID string, age time.Duration) *assignment.Payment {
	t.Helper()
	ctx := context.Background()
	touched := time.Now().Add(-age)
	p := &assignment.Payment{
		ID: "pay-" + assignmentID, AssignmentID: assignmentID, CandidateID: "dev1",
		Status: assignment.PaymentPending, Amount: decimal.NewFromInt(100), Currency: "USD",
		CreatedAt: touched, UpdatedAt: touched,
	}
	require.NoError(t, f.payments.CreateAttempt(ctx, p))
	if status == assignment.PaymentProcessing {
		p.Status = assignment.PaymentProcessing
		p.TransactionID = orderID
		require.NoError(t, f.payments.Update(ctx, p))
	}
	return p
}

func TestAmountFor(t *testing.T) {
	tests := []struct {
		c    task.Complexity
		want string
	}{
		{task.ComplexityLow, "100"},
		{task.ComplexityMedium, "250"},
		{task.ComplexityHigh, "500"},
	}
	for _, tt := range tests {
		got, err := payment.AmountFor(tt.c)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String())
	}
	_, err := payment.AmountFor("epic")
	require.Error(t, err)
}

func TestProcess_RequiresCompleted(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusInProgress)

	_, err := f.engine.Process(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, cerr.ReasonAssignmentNotCompleted, cerr.ReasonOf(err))

	attempts, err := f.payments.ListByAssignment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestProcess_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityHigh, assignment.StatusCompleted)
	subID, ch := f.bus.Subscribe(4)
	defer f.bus.Unsubscribe(subID)

	p, err := f.engine.Process(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.PaymentCompleted, p.Status)
	assert.Equal(t, "500", p.Amount.String())
	assert.Equal(t, "ORDER-1", p.TransactionID)
	assert.Equal(t, 1, p.Attempt)
	assert.NotNil(t, p.ProcessedDate)

	ev := <-ch
	assert.Equal(t, eventbus.EventPaymentCompleted, ev.Type)
	assert.Equal(t, "500.00", ev.Metadata["amount"])

	_, err = f.engine.Process(ctx, "a1")
	require.Error(t, err, "a completed payment blocks further attempts")
	assert.Equal(t, cerr.ReasonPaymentProcessingFailed, cerr.ReasonOf(err))
}

func TestProcess_RetriesKeepAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityMedium, assignment.StatusCompleted)
	f.processor.createErr = []error{errors.New("processor down")}
	f.processor.captureErr = []error{errors.New("card declined")}

	p1, err := f.engine.Process(ctx, "a1")
	require.Error(t, err)
	assert.Equal(t, cerr.ReasonPaymentProcessingFailed, cerr.ReasonOf(err))
	require.NotNil(t, p1)
	assert.Equal(t, assignment.PaymentFailed, p1.Status)
	assert.Empty(t, p1.TransactionID, "no order was created")

	p2, err := f.engine.Process(ctx, "a1")
	require.Error(t, err)
	assert.Equal(t, assignment.PaymentFailed, p2.Status)
	assert.Equal(t, "ORDER-1", p2.TransactionID)

	p3, err := f.engine.Process(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.PaymentCompleted, p3.Status)
	assert.Equal(t, "ORDER-2", p3.TransactionID)

	attempts, err := f.payments.ListByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	completed := 0
	seenAttempts := map[int]bool{}
	for _, p := range attempts {
		assert.Equal(t, "250", p.Amount.String())
		assert.NotNil(t, p.ProcessedDate)
		seenAttempts[p.Attempt] = true
		if p.Status == assignment.PaymentCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seenAttempts)
	for _, amount := range f.processor.amounts {
		assert.Equal(t, "250", amount.String())
	}
}

func TestProcess_NotCaptured(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.processor.notCaptured = true

	p, err := f.engine.Process(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, assignment.PaymentFailed, p.Status)
	assert.Contains(t, p.FailureReason, "not captured")
}

func TestProcess_TimeoutWritesFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50*time.Millisecond)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.processor.block = true

	_, err := f.engine.Process(ctx, "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	attempts, err := f.payments.ListByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, assignment.PaymentFailed, attempts[0].Status)
	assert.Equal(t, "ORDER-1", attempts[0].TransactionID)
}

func TestProcess_CallerCancelled(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.processor.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := f.engine.Process(ctx, "a1")
	require.Error(t, err)

	attempts, err := f.payments.ListByAssignment(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, assignment.PaymentFailed, attempts[0].Status)
}

func TestDispatcher(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityMedium, assignment.StatusCompleted)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d := payment.NewDispatcher(f.engine, f.bus)
	go func() {
		d.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		f.bus.PublishNew(eventbus.EventAssignmentCompleted, "a1", nil)
		attempts, err := f.payments.ListByAssignment(context.Background(), "a1")
		return err == nil && len(attempts) == 1 && attempts[0].Status == assignment.PaymentCompleted
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name       string
		status     assignment.PaymentStatus
		orderID    string
		captured   bool
		want       assignment.PaymentStatus
		wantReason string
	}{
		{name: "pending attempt is failed", status: assignment.PaymentPending, want: assignment.PaymentFailed, wantReason: "abandoned"},
		{name: "processing without order is failed", status: assignment.PaymentProcessing, want: assignment.PaymentFailed, wantReason: "abandoned"},
		{name: "captured order is completed", status: assignment.PaymentProcessing, orderID: "ORDER-9", captured: true, want: assignment.PaymentCompleted},
		{name: "uncaptured order is failed", status: assignment.PaymentProcessing, orderID: "ORDER-9", want: assignment.PaymentFailed, wantReason: "not captured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, time.Second)
			f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
			f.processor.captured = map[string]bool{"ORDER-9": tt.captured}
			f.seedAttempt(t, "a1", tt.status, tt.orderID, time.Hour)

			_, err := f.engine.Process(ctx, "a1")
			require.Error(t, err, "an open attempt blocks a retry")

			closed, err := f.engine.Reconcile(ctx, "a1")
			require.NoError(t, err)
			require.Len(t, closed, 1)
			assert.Equal(t, tt.want, closed[0].Status)
			assert.NotNil(t, closed[0].ProcessedDate)
			if tt.wantReason != "" {
				assert.Contains(t, closed[0].FailureReason, tt.wantReason)
			}

			stored, err := f.payments.Get(ctx, "pay-a1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)

			p, err := f.engine.Process(ctx, "a1")
			if tt.want == assignment.PaymentCompleted {
				require.Error(t, err, "a completed payment still blocks")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, p.Attempt)
			assert.Equal(t, assignment.PaymentCompleted, p.Status)
		})
	}
}

func TestReconcile_LeavesRecentAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Minute)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.seedAttempt(t, "a1", assignment.PaymentPending, "", time.Second)

	closed, err := f.engine.Reconcile(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, closed)

	stored, err := f.payments.Get(ctx, "pay-a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.PaymentPending, stored.Status)
}

func TestReconcile_LookupFailureKeepsAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.processor.lookupErr = errors.New("processor down")
	f.seedAttempt(t, "a1", assignment.PaymentProcessing, "ORDER-9", time.Hour)

	_, err := f.engine.Reconcile(ctx, "a1")
	require.Error(t, err)
	assert.Equal(t, cerr.ReasonPaymentProcessingFailed, cerr.ReasonOf(err))

	stored, err := f.payments.Get(ctx, "pay-a1")
	require.NoError(t, err)
	assert.Equal(t, assignment.PaymentProcessing, stored.Status)
}

func TestDispatcher_SweepSettlesMissedCompletions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAssignment(t, "missed", task.ComplexityMedium, assignment.StatusCompleted)
	f.addAssignment(t, "stuck", task.ComplexityLow, assignment.StatusCompleted)
	f.addAssignment(t, "working", task.ComplexityLow, assignment.StatusInProgress)
	f.seedAttempt(t, "stuck", assignment.PaymentPending, "", time.Hour)

	payment.NewDispatcher(f.engine, f.bus).Sweep(ctx)

	missed, err := f.payments.ListByAssignment(ctx, "missed")
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, assignment.PaymentCompleted, missed[0].Status)
	assert.Equal(t, "250", missed[0].Amount.String())

	stuck, err := f.payments.ListByAssignment(ctx, "stuck")
	require.NoError(t, err)
	require.Len(t, stuck, 1, "a reconciled failure waits for an explicit retry")
	assert.Equal(t, assignment.PaymentFailed, stuck[0].Status)

	working, err := f.payments.ListByAssignment(ctx, "working")
	require.NoError(t, err)
	assert.Empty(t, working)

	payment.NewDispatcher(f.engine, f.bus).Sweep(ctx)
	missed, err = f.payments.ListByAssignment(ctx, "missed")
	require.NoError(t, err)
	assert.Len(t, missed, 1, "a second sweep does not pay twice")
}

func TestDispatcher_PeriodicSweep(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d := payment.NewDispatcher(f.engine, f.bus, payment.WithSweepInterval(20*time.Millisecond))
	go func() {
		d.Start(ctx)
		close(done)
	}()

	// completed after the startup sweep, with no event published
	time.Sleep(30 * time.Millisecond)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)

	require.Eventually(t, func() bool {
		attempts, err := f.payments.ListByAssignment(context.Background(), "a1")
		return err == nil && len(attempts) == 1 && attempts[0].Status == assignment.PaymentCompleted
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestServer_Reconcile(t *testing.T) {
	f := newFixture(t, time.Second)
	f.addAssignment(t, "a1", task.ComplexityLow, assignment.StatusCompleted)
	f.seedAttempt(t, "a1", assignment.PaymentPending, "", time.Hour)

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	r.Use(principal.Middleware)
	payment.NewServer(f.engine).Mount(r)

	post := func(target string, role principal.Role) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		req.Header.Set(principal.HeaderID, "someone")
		req.Header.Set(principal.HeaderRole, string(role))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/assignments/a1/payment/reconcile", principal.RoleDeveloper)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post("/assignments/a1/payment/reconcile", principal.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)

	rec = post("/assignments/a1/payment", principal.RoleAdmin)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = post("/assignments/missing/payment/reconcile", principal.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
