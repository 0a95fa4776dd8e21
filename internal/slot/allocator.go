package slot

import (
	"context"
	"log/slog"
)

type Allocator struct {
	repo Repository
}

func NewAllocator(repo Repository) *Allocator {
	return &Allocator{repo: repo}
}

func (a *Allocator) Reserve(ctx context.Context, developerID, taskID string) (*Reservation, error) {
	r, err := a.repo.ReserveFirstAvailable(ctx, developerID, taskID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workspace slot reserved",
		"reservation_id", r.ID,
		"server_id", r.ServerID,
		"developer_id", developerID,
		"task_id", taskID,
	)
	return r, nil
}

// Release frees the slot behind reservationID. Unknown and already released
// reservations are a no-op.
func (a *Allocator) Release(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	released, err := a.repo.Release(ctx, reservationID)
	if err != nil {
		return err
	}
	if released {
		slog.InfoContext(ctx, "workspace slot released", "reservation_id", reservationID)
	}
	return nil
}

func (a *Allocator) Servers(ctx context.Context) ([]*Server, error) {
	return a.repo.ListServers(ctx)
}
