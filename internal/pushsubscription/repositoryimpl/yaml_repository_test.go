package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/internal/pushsubscription"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

func TestYAMLRepository(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &pushsubscription.Subscription{
		ID: "s1", PrincipalID: "dev1", Role: principal.RoleDeveloper,
		Endpoint: "https://push.example/1", P256dhKey: "p", AuthKey: "a", CreatedAt: created,
	}))

	// same endpoint re-registered under a new id keeps the original record
	require.NoError(t, repo.Save(ctx, &pushsubscription.Subscription{
		ID: "s2", PrincipalID: "dev1", Role: principal.RoleDeveloper,
		Endpoint: "https://push.example/1", P256dhKey: "p2", AuthKey: "a2", CreatedAt: time.Now(),
	}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s1", all[0].ID)
	assert.Equal(t, "p2", all[0].P256dhKey)
	assert.True(t, created.Equal(all[0].CreatedAt))

	found, err := repo.FindByEndpoint(ctx, "https://push.example/1")
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, found.ID))

	_, err = repo.FindByEndpoint(ctx, "https://push.example/1")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.True(t, cerr.IsCode(repo.Delete(ctx, "s1"), cerr.NotFound))
}
