package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

const (
	serversPrefix      = "slots/servers"
	reservationsPrefix = "slots/reservations"
)

// YAMLRepository stores servers and reservations as YAML files. mu makes the
// select-and-increment of a reservation a single critical section within
// this process.
type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func serverPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", serversPrefix, id)
}

func reservationPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", reservationsPrefix, id)
}

func (r *YAMLRepository) ReserveFirstAvailable(ctx context.Context, developerID, taskID string) (*slot.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers, err := r.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range servers {
		if !s.HasCapacity() {
			continue
		}
		s.UsedCount++
		s.UpdatedAt = time.Now()
		if err := writeYAML(ctx, r.storage, serverPath(s.ID), "server", s); err != nil {
			return nil, err
		}
		res := &slot.Reservation{
			ID:          ulid.Make().String(),
			ServerID:    s.ID,
			ServerHost:  s.Host,
			ServerPort:  s.Port,
			ServerUser:  s.User,
			DeveloperID: developerID,
			TaskID:      taskID,
			CreatedAt:   time.Now(),
		}
		if err := writeYAML(ctx, r.storage, reservationPath(res.ID), "reservation", res); err != nil {
			s.UsedCount--
			_ = writeYAML(ctx, r.storage, serverPath(s.ID), "server", s)
			return nil, err
		}
		return res, nil
	}
	return nil, slot.ErrNoCapacity()
}

func (r *YAMLRepository) Release(ctx context.Context, reservationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.GetReservation(ctx, reservationID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return false, nil
		}
		return false, err
	}
	if res.Released() {
		return false, nil
	}
	now := time.Now()
	res.ReleasedAt = &now
	if err := writeYAML(ctx, r.storage, reservationPath(res.ID), "reservation", res); err != nil {
		return false, err
	}

	var s slot.Server
	if err := readYAML(ctx, r.storage, serverPath(res.ServerID), "server", &s); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			// server removed from the pool; nothing left to decrement
			return true, nil
		}
		return false, err
	}
	if s.UsedCount > 0 {
		s.UsedCount--
	}
	s.UpdatedAt = now
	if err := writeYAML(ctx, r.storage, serverPath(s.ID), "server", &s); err != nil {
		return false, err
	}
	return true, nil
}

func (r *YAMLRepository) GetReservation(ctx context.Context, id string) (*slot.Reservation, error) {
	var res slot.Reservation
	if err := readYAML(ctx, r.storage, reservationPath(id), "reservation", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *YAMLRepository) ListServers(ctx context.Context) ([]*slot.Server, error) {
	paths, err := r.storage.List(ctx, serversPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("servers", err)
	}
	servers := make([]*slot.Server, 0, len(paths))
	for _, p := range paths {
		var s slot.Server
		if err := readYAML(ctx, r.storage, p, "server", &s); err != nil {
			return nil, err
		}
		servers = append(servers, &s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

func (r *YAMLRepository) UpsertServer(ctx context.Context, s *slot.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := *s
	next.UsedCount = 0
	var existing slot.Server
	err := readYAML(ctx, r.storage, serverPath(s.ID), "server", &existing)
	switch {
	case err == nil:
		next.UsedCount = existing.UsedCount
	case !cerr.IsCode(err, cerr.NotFound):
		return err
	}
	if next.Capacity < next.UsedCount {
		slog.WarnContext(ctx, "server capacity held at used count",
			"server_id", s.ID, "requested_capacity", s.Capacity, "used_count", next.UsedCount)
		next.Capacity = next.UsedCount
	}
	next.UpdatedAt = time.Now()
	return writeYAML(ctx, r.storage, serverPath(s.ID), "server", &next)
}

func readYAML(ctx context.Context, s storage.Storage, path, target string, out any) error {
	data, err := s.Read(ctx, path)
	if err != nil {
		return cerr.WrapStorageReadError(target, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal %s: %w", target, err))
	}
	return nil
}

func writeYAML(ctx context.Context, s storage.Storage, path, target string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal %s: %w", target, err))
	}
	if err := s.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError(target, err)
	}
	return nil
}
