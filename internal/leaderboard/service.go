package leaderboard

import (
	"cmp"
	"context"
	"slices"

	"github.com/sourcegraph/conc/iter"

	"github.com/kazz187/devguild/internal/assignment"
)

type Service struct {
	assignments assignment.Repository
	payments    assignment.PaymentRepository
}

func NewService(assignments assignment.Repository, payments assignment.PaymentRepository) *Service {
	return &Service{assignments: assignments, payments: payments}
}

func (s *Service) CandidateStats(ctx context.Context, candidateID string) (*Stats, error) {
	list, _, err := s.assignments.List(ctx, assignment.ListFilter{CandidateID: candidateID})
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListCompletedByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	return Compute(candidateID, list, payments), nil
}

// Leaderboard returns stats for every candidate that ever held an
// assignment, best average first, then highest earnings, then id.
func (s *Service) Leaderboard(ctx context.Context) ([]*Stats, error) {
	all, _, err := s.assignments.List(ctx, assignment.ListFilter{})
	if err != nil {
		return nil, err
	}
	byCandidate := map[string][]*assignment.Assignment{}
	for _, a := range all {
		byCandidate[a.CandidateID] = append(byCandidate[a.CandidateID], a)
	}
	candidates := make([]string, 0, len(byCandidate))
	for id := range byCandidate {
		candidates = append(candidates, id)
	}

	stats, err := iter.MapErr(candidates, func(id *string) (*Stats, error) {
		payments, err := s.payments.ListCompletedByCandidate(ctx, *id)
		if err != nil {
			return nil, err
		}
		return Compute(*id, byCandidate[*id], payments), nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(stats, func(a, b *Stats) int {
		if c := b.AverageScore.Cmp(a.AverageScore); c != 0 {
			return c
		}
		if c := b.TotalEarned.Cmp(a.TotalEarned); c != 0 {
			return c
		}
		return cmp.Compare(a.CandidateID, b.CandidateID)
	})
	return stats, nil
}
