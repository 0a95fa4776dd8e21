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

const paymentsPrefix = "payments"

type YAMLPaymentRepository struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewYAMLPaymentRepository(s storage.Storage) *YAMLPaymentRepository {
	return &YAMLPaymentRepository{storage: s}
}

func paymentPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", paymentsPrefix, id)
}

func (r *YAMLPaymentRepository) CreateAttempt(ctx context.Context, p *assignment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.ListByAssignment(ctx, p.AssignmentID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Status.IsOpen() {
			return assignment.ErrPaymentInProgress(p.AssignmentID, e.Status)
		}
	}
	p.Attempt = len(existing) + 1
	return r.write(ctx, p)
}

func (r *YAMLPaymentRepository) Get(ctx context.Context, id string) (*assignment.Payment, error) {
	return r.read(ctx, paymentPath(id))
}

func (r *YAMLPaymentRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*assignment.Payment, error) {
	return r.filter(ctx, func(p *assignment.Payment) bool {
		return p.AssignmentID == assignmentID
	})
}

func (r *YAMLPaymentRepository) ListCompletedByCandidate(ctx context.Context, candidateID string) ([]*assignment.Payment, error) {
	return r.filter(ctx, func(p *assignment.Payment) bool {
		return p.CandidateID == candidateID && p.Status == assignment.PaymentCompleted
	})
}

func (r *YAMLPaymentRepository) Update(ctx context.Context, p *assignment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read(ctx, paymentPath(p.ID))
	if err != nil {
		return err
	}
	if err := assignment.CheckPaymentUpdate(stored, p); err != nil {
		return err
	}
	return r.write(ctx, p)
}

func (r *YAMLPaymentRepository) filter(ctx context.Context, pred func(*assignment.Payment) bool) ([]*assignment.Payment, error) {
	paths, err := r.storage.List(ctx, paymentsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("payments", err)
	}
	var out []*assignment.Payment
	for _, path := range paths {
		p, err := r.read(ctx, path)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return nil, err
		}
		if pred(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignmentID != out[j].AssignmentID {
			return out[i].AssignmentID < out[j].AssignmentID
		}
		return out[i].Attempt < out[j].Attempt
	})
	return out, nil
}

func (r *YAMLPaymentRepository) read(ctx context.Context, path string) (*assignment.Payment, error) {
	data, err := r.storage.Read(ctx, path)
	if err != nil {
		return nil, cerr.WrapStorageReadError("payment", err)
	}
	var p assignment.Payment
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal payment: %w", err))
	}
	return &p, nil
}

func (r *YAMLPaymentRepository) write(ctx context.Context, p *assignment.Payment) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal payment: %w", err))
	}
	if err := r.storage.Write(ctx, paymentPath(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("payment", err)
	}
	return nil
}
