package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

const assignmentsPrefix = "assignments"

// YAMLRepository keeps one file per assignment. Check-and-write sections are
// serialised by mu, which makes it safe for a single server process only.
type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", assignmentsPrefix, id)
}

func (r *YAMLRepository) CreateActive(ctx context.Context, a *assignment.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.loadAll(ctx)
	if err != nil {
		return err
	}
	for _, existing := range all {
		if existing.ID == a.ID {
			return cerr.NewError(cerr.AlreadyExists, "assignment already exists", nil)
		}
		if existing.TaskID == a.TaskID && existing.Status.IsActive() {
			return assignment.ErrTaskUnavailable(a.TaskID)
		}
	}
	a.Version = 1
	return r.write(ctx, a)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*assignment.Assignment, error) {
	return r.read(ctx, path(id))
}

func (r *YAMLRepository) List(ctx context.Context, filter assignment.ListFilter) ([]*assignment.Assignment, int, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	var matched []*assignment.Assignment
	for _, a := range all {
		if filter.Match(a) {
			matched = append(matched, a)
		}
	}

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, a *assignment.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(ctx, path(a.ID))
	if err != nil {
		return err
	}
	if stored.Version != a.Version {
		return assignment.ErrConcurrentModification("assignment", a.ID)
	}
	a.Version++
	if err := r.write(ctx, a); err != nil {
		a.Version--
		return err
	}
	return nil
}

func (r *YAMLRepository) HasActive(ctx context.Context, taskID string) (bool, error) {
	return r.any(ctx, func(a *assignment.Assignment) bool {
		return a.TaskID == taskID && a.Status.IsActive()
	})
}

func (r *YAMLRepository) HasNonCancelled(ctx context.Context, taskID string) (bool, error) {
	return r.any(ctx, func(a *assignment.Assignment) bool {
		return a.TaskID == taskID && a.Status != assignment.StatusCancelled
	})
}

func (r *YAMLRepository) any(ctx context.Context, pred func(*assignment.Assignment) bool) (bool, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if pred(a) {
			return true, nil
		}
	}
	return false, nil
}

func (r *YAMLRepository) loadAll(ctx context.Context) ([]*assignment.Assignment, error) {
	paths, err := r.storage.List(ctx, assignmentsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("assignments", err)
	}
	sort.Strings(paths)

	all := make([]*assignment.Assignment, 0, len(paths))
	for _, p := range paths {
		a, err := r.read(ctx, p)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return nil, err
		}
		all = append(all, a)
	}
	return all, nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*assignment.Assignment, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("assignment", err)
	}
	var a assignment.Assignment
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal assignment: %w", err))
	}
	return &a, nil
}

func (r *YAMLRepository) write(ctx context.Context, a *assignment.Assignment) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal assignment: %w", err))
	}
	if err := r.storage.Write(ctx, path(a.ID), data); err != nil {
		return cerr.WrapStorageWriteError("assignment", err)
	}
	return nil
}
