package task

import "context"

type ListFilter struct {
	Category   Category
	Complexity Complexity
	Department string
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// AssignmentChecker answers the questions task mutations depend on.
// assignment.Repository satisfies it.
type AssignmentChecker interface {
	HasActive(ctx context.Context, taskID string) (bool, error)
	HasNonCancelled(ctx context.Context, taskID string) (bool, error)
}

func (f ListFilter) Match(t *Task) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Complexity != "" && t.Complexity != f.Complexity {
		return false
	}
	if f.Department != "" && t.Department != f.Department {
		return false
	}
	return true
}
