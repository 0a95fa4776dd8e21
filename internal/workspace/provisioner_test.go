package workspace_test

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/devguild/internal/analyzer"
	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/internal/workspace"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/shellformat"
	"github.com/kazz187/devguild/pkg/storage"
)

func newProvisioner(t *testing.T) (*workspace.Provisioner, *storage.LocalStorage) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return workspace.NewProvisioner(s), s
}

func sampleTask() *task.Task {
	return &task.Task{
		ID:                 "t1",
		Title:              "Checkout page",
		Description:        "Build the checkout flow.",
		Category:           task.CategoryNewFeature,
		Complexity:         task.ComplexityMedium,
		Compensation:       decimal.NewFromInt(250),
		Requirements:       []string{"Use the payments API", "Support guest checkout"},
		AcceptanceCriteria: []string{"Orders are created", "Errors are shown inline"},
	}
}

func sampleReservation(id string) *slot.Reservation {
	return &slot.Reservation{
		ID:          id,
		ServerID:    "srv-a",
		ServerHost:  "dev-a.internal",
		ServerPort:  2222,
		ServerUser:  "o'neil",
		DeveloperID: "dev1",
		TaskID:      "t1",
	}
}

func TestProvision_Layout(t *testing.T) {
	ctx := context.Background()
	p, s := newProvisioner(t)
	a := &analyzer.RepoAnalysis{
		RequiredComponents: []string{"checkout-form", "payment-client"},
		Dependencies:       analyzer.Dependencies{External: []string{"stripe"}, Internal: []string{}},
		APIIntegration:     true,
		ComponentStructure: map[string]string{"src/checkout": "checkout UI"},
	}

	ws, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), a)
	require.NoError(t, err)
	assert.Equal(t, "t1-dev1-r1", ws.ID)
	assert.Equal(t, "srv-a", ws.ServerID)
	assert.Equal(t, "workspaces/t1/dev1/r1", ws.Path)

	for _, f := range []string{
		"src/.keep", "tests/.keep", "docs/.keep", "src/checkout/.keep",
		".credentials/credentials.yaml", "setup.sh", "README.md", "docs/ONBOARDING.md", "workspace.yaml",
	} {
		ok, err := s.Exists(ctx, path.Join(ws.Path, f))
		require.NoError(t, err)
		assert.True(t, ok, f)
	}

	readme, err := s.Read(ctx, path.Join(ws.Path, "README.md"))
	require.NoError(t, err)
	for _, want := range []string{
		"# Checkout page",
		"Components: checkout-form, payment-client.",
		"Needs: API integration.",
		"| src/checkout | checkout UI |",
		"- Support guest checkout",
		"- [ ] Errors are shown inline",
	} {
		assert.Contains(t, string(readme), want)
	}

	script, err := s.Read(ctx, path.Join(ws.Path, "setup.sh"))
	require.NoError(t, err)
	require.NoError(t, shellformat.Validate(string(script)))
	assert.Contains(t, string(script), "SERVER_PORT=2222")
	assert.Contains(t, string(script), "dev-a.internal")
	assert.True(t, strings.HasPrefix(string(script), "#!/usr/bin/env bash"))

	raw, err := s.Read(ctx, path.Join(ws.Path, ".credentials/credentials.yaml"))
	require.NoError(t, err)
	var creds map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &creds))
	assert.Equal(t, "t1-dev1-r1", creds["workspace_id"])
	assert.Len(t, creds["access_token"], 64)

	m, err := p.Manifest(ctx, ws.Path)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, m.ID)
	assert.Equal(t, []string{"checkout-form", "payment-client"}, m.RequiredComponents)
	assert.True(t, m.APIIntegration)
	assert.False(t, m.AuthSetup)
}

func TestProvision_DefaultAnalysis(t *testing.T) {
	ctx := context.Background()
	p, s := newProvisioner(t)

	ws, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), nil)
	require.NoError(t, err)

	readme, err := s.Read(ctx, path.Join(ws.Path, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "No automated analysis is available for this task.")
	assert.Empty(t, ws.Manifest.RequiredComponents)
}

func TestProvision_RetryGetsFreshID(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvisioner(t)

	first, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), nil)
	require.NoError(t, err)
	second, err := p.Provision(ctx, sampleReservation("r2"), sampleTask(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Path, second.Path)

	m, err := p.Manifest(ctx, second.Path)
	require.NoError(t, err)
	assert.Equal(t, second.ID, m.ID)

	m, err = p.Manifest(ctx, first.Path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, m.ID)
}

func TestDiscard_LeavesOtherAttempts(t *testing.T) {
	ctx := context.Background()
	p, s := newProvisioner(t)

	released, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), nil)
	require.NoError(t, err)
	require.NoError(t, p.MarkReleased(ctx, released.Path, released.ID))

	live, err := p.Provision(ctx, sampleReservation("r2"), sampleTask(), nil)
	require.NoError(t, err)
	rolledBack, err := p.Provision(ctx, sampleReservation("r3"), sampleTask(), nil)
	require.NoError(t, err)

	require.NoError(t, p.Discard(ctx, rolledBack))
	_, err = p.Manifest(ctx, rolledBack.Path)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	for _, ws := range []*workspace.Workspace{released, live} {
		m, err := p.Manifest(ctx, ws.Path)
		require.NoError(t, err)
		assert.Equal(t, ws.ID, m.ID)
		for _, f := range []string{"setup.sh", ".credentials/credentials.yaml", "README.md"} {
			ok, err := s.Exists(ctx, path.Join(ws.Path, f))
			require.NoError(t, err)
			assert.True(t, ok, ws.ID+" "+f)
		}
	}

	m, err := p.Manifest(ctx, released.Path)
	require.NoError(t, err)
	assert.NotNil(t, m.ReleasedAt)
}

func TestProvision_RejectsBadReservationID(t *testing.T) {
	p, _ := newProvisioner(t)
	for _, id := range []string{"", "../r1", `r\1`} {
		_, err := p.Provision(context.Background(), sampleReservation(id), sampleTask(), nil)
		assert.Error(t, err, id)
	}
}

func TestMarkReleased(t *testing.T) {
	ctx := context.Background()
	p, s := newProvisioner(t)

	ws, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), nil)
	require.NoError(t, err)

	require.NoError(t, p.MarkReleased(ctx, ws.Path, "someone-else"))
	m, err := p.Manifest(ctx, ws.Path)
	require.NoError(t, err)
	assert.Nil(t, m.ReleasedAt)

	require.NoError(t, p.MarkReleased(ctx, ws.Path, ws.ID))
	require.NoError(t, p.MarkReleased(ctx, ws.Path, ws.ID))
	m, err = p.Manifest(ctx, ws.Path)
	require.NoError(t, err)
	assert.NotNil(t, m.ReleasedAt)

	ok, err := s.Exists(ctx, path.Join(ws.Path, "README.md"))
	require.NoError(t, err)
	assert.True(t, ok, "release keeps files")

	require.NoError(t, p.MarkReleased(ctx, "workspaces/none/none", "x"))
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	p, s := newProvisioner(t)
	a := analyzer.Default()
	a.ComponentStructure["src/api"] = "handlers"

	ws, err := p.Provision(ctx, sampleReservation("r1"), sampleTask(), a)
	require.NoError(t, err)

	stale := &workspace.Workspace{ID: "other", Path: ws.Path}
	require.NoError(t, p.Discard(ctx, stale))
	stale = &workspace.Workspace{ID: ws.ID, Path: workspace.Path("t1", "dev1", "r9")}
	require.NoError(t, p.Discard(ctx, stale))
	ok, err := s.Exists(ctx, path.Join(ws.Path, "workspace.yaml"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Discard(ctx, ws))
	for _, f := range []string{"workspace.yaml", "README.md", "src/api/.keep", ".credentials/credentials.yaml"} {
		ok, err := s.Exists(ctx, path.Join(ws.Path, f))
		require.NoError(t, err)
		assert.False(t, ok, f)
	}

	_, err = p.Manifest(ctx, ws.Path)
	require.Error(t, err)
}
