package slot

import (
	"context"

	"github.com/kazz187/devguild/pkg/cerr"
)

type Repository interface {
	// ReserveFirstAvailable takes a slot on the first active server, in id
	// order, that has room. Selection and increment happen atomically.
	ReserveFirstAvailable(ctx context.Context, developerID, taskID string) (*Reservation, error)
	// Release frees a reservation. It returns false, with no error, when the
	// reservation is unknown or already released.
	Release(ctx context.Context, reservationID string) (bool, error)
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	ListServers(ctx context.Context) ([]*Server, error)
	// UpsertServer syncs a server's connection details, capacity and status.
	// UsedCount is never taken from s for existing servers.
	UpsertServer(ctx context.Context, s *Server) error
}

func ErrNoCapacity() error {
	return cerr.NewReasonError(cerr.ResourceExhausted, cerr.ReasonNoCapacity, "no workspace server has free capacity", nil)
}
