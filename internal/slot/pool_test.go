package slot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/slot/repositoryimpl"
	"github.com/kazz187/devguild/pkg/storage"
)

func TestParsePool(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name: "defaults",
			input: `servers:
  - id: ws-01
    host: ws-01.internal
    capacity: 4
`,
			want: 1,
		},
		{
			name: "duplicate id",
			input: `servers:
  - {id: a, capacity: 1}
  - {id: a, capacity: 2}
`,
			wantErr: true,
		},
		{name: "missing id", input: "servers:\n  - {capacity: 1}\n", wantErr: true},
		{name: "negative capacity", input: "servers:\n  - {id: a, capacity: -1}\n", wantErr: true},
		{name: "bad status", input: "servers:\n  - {id: a, capacity: 1, status: gone}\n", wantErr: true},
		{name: "not yaml", input: "servers: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := slot.ParsePool([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	got, err := slot.ParsePool([]byte("servers:\n  - {id: a, capacity: 2}\n"))
	require.NoError(t, err)
	assert.Equal(t, 22, got[0].Port)
	assert.Equal(t, slot.ServerActive, got[0].Status)
}

func TestPoolWatcher_ResyncsOnChange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	poolPath := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(poolPath, []byte("servers:\n  - {id: ws-01, capacity: 1}\n"), 0o644))

	store, err := storage.NewLocalStorage(filepath.Join(dir, "data"))
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(store)
	require.NoError(t, slot.SyncPoolFile(ctx, repo, poolPath))

	_, err = repo.ReserveFirstAvailable(ctx, "dev-1", "T1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		slot.NewPoolWatcher(repo, poolPath).Start(ctx)
		close(done)
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(poolPath, []byte("servers:\n  - {id: ws-01, capacity: 3}\n  - {id: ws-02, capacity: 2}\n"), 0o644))

	assert.Eventually(t, func() bool {
		servers, err := repo.ListServers(ctx)
		if err != nil || len(servers) != 2 {
			return false
		}
		return servers[0].Capacity == 3 && servers[0].UsedCount == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

func TestSyncPoolFile_Missing(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, slot.SyncPoolFile(context.Background(), repositoryimpl.NewYAMLRepository(store), filepath.Join(t.TempDir(), "nope.yaml")))
}
