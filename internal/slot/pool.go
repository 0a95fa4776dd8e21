package slot

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// PoolFile is the on-disk description of the workspace server pool.
//
//	servers:
//	  - id: ws-01
//	    host: ws-01.internal
//	    port: 22
//	    user: devguild
//	    capacity: 8
//	    status: active
type PoolFile struct {
	Servers []PoolServer `yaml:"servers"`
}

type PoolServer struct {
	ID       string       `yaml:"id"`
	Host     string       `yaml:"host"`
	Port     int          `yaml:"port"`
	User     string       `yaml:"user"`
	Capacity int          `yaml:"capacity"`
	Status   ServerStatus `yaml:"status"`
}

func ParsePool(data []byte) ([]*Server, error) {
	var f PoolFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pool file: %w", err)
	}
	seen := make(map[string]bool, len(f.Servers))
	servers := make([]*Server, 0, len(f.Servers))
	for i, ps := range f.Servers {
		if ps.ID == "" {
			return nil, fmt.Errorf("servers[%d]: id is required", i)
		}
		if seen[ps.ID] {
			return nil, fmt.Errorf("servers[%d]: duplicate id %q", i, ps.ID)
		}
		seen[ps.ID] = true
		if ps.Capacity < 0 {
			return nil, fmt.Errorf("server %s: capacity must not be negative", ps.ID)
		}
		if ps.Port == 0 {
			ps.Port = 22
		}
		if ps.Status == "" {
			ps.Status = ServerActive
		}
		if !ps.Status.Valid() {
			return nil, fmt.Errorf("server %s: unknown status %q", ps.ID, ps.Status)
		}
		servers = append(servers, &Server{
			ID:       ps.ID,
			Host:     ps.Host,
			Port:     ps.Port,
			User:     ps.User,
			Capacity: ps.Capacity,
			Status:   ps.Status,
		})
	}
	return servers, nil
}

// SyncPoolFile loads path and upserts every server it lists. A missing file
// is not an error; the pool is simply left as stored.
func SyncPoolFile(ctx context.Context, repo Repository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.WarnContext(ctx, "workspace pool file not found", "path", path)
			return nil
		}
		return fmt.Errorf("failed to read pool file: %w", err)
	}
	servers, err := ParsePool(data)
	if err != nil {
		return err
	}
	for _, s := range servers {
		if err := repo.UpsertServer(ctx, s); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "workspace pool synced", "path", path, "servers", len(servers))
	return nil
}
