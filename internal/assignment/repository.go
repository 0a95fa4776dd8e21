package assignment

import "context"

type ListFilter struct {
	TaskID      string
	CandidateID string
	Status      Status
	Limit       int
	Offset      int
}

func (f ListFilter) Match(a *Assignment) bool {
	if f.TaskID != "" && a.TaskID != f.TaskID {
		return false
	}
	if f.CandidateID != "" && a.CandidateID != f.CandidateID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

type Repository interface {
	// CreateActive inserts a only if its task has no active assignment.
	// Otherwise it fails with reason TASK_UNAVAILABLE.
	CreateActive(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id string) (*Assignment, error)
	List(ctx context.Context, filter ListFilter) ([]*Assignment, int, error)
	// Update succeeds only if the stored version equals a.Version, and then
	// bumps a.Version. A stale version fails with CONCURRENT_MODIFICATION.
	Update(ctx context.Context, a *Assignment) error
	HasActive(ctx context.Context, taskID string) (bool, error)
	HasNonCancelled(ctx context.Context, taskID string) (bool, error)
}

type PaymentRepository interface {
	// CreateAttempt inserts p as the next attempt for its assignment. It is
	// rejected while another attempt is pending, processing or completed.
	CreateAttempt(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]*Payment, error)
	// Update only moves status forward and never changes the amount.
	Update(ctx context.Context, p *Payment) error
	ListCompletedByCandidate(ctx context.Context, candidateID string) ([]*Payment, error)
}
