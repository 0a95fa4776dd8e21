package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/devguild/internal/analyzer"
	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/storage"
)

type credentials struct {
	WorkspaceID string    `yaml:"workspace_id"`
	ServerHost  string    `yaml:"server_host"`
	ServerPort  int       `yaml:"server_port"`
	ServerUser  string    `yaml:"server_user"`
	AccessToken string    `yaml:"access_token"`
	IssuedAt    time.Time `yaml:"issued_at"`
}

type Provisioner struct {
	storage storage.Storage
	now     func() time.Time
}

func NewProvisioner(s storage.Storage) *Provisioner {
	return &Provisioner{storage: s, now: time.Now}
}

// Provision writes a complete workspace for the reservation. On error some
// files may already exist; the caller decides whether to Discard them and
// must release the slot.
func (p *Provisioner) Provision(ctx context.Context, res *slot.Reservation, t *task.Task, a *analyzer.RepoAnalysis) (*Workspace, error) {
	if res == nil || t == nil {
		return nil, errors.New("reservation and task are required")
	}
	if a == nil {
		a = analyzer.Default()
	}
	if res.ID == "" || strings.ContainsAny(res.ID, "/\\") {
		return nil, fmt.Errorf("invalid reservation id %q", res.ID)
	}
	pair := PairPath(t.ID, res.DeveloperID)
	root := Path(t.ID, res.DeveloperID, res.ID)
	id := NewID(t.ID, res.DeveloperID, res.ID)
	now := p.now()

	files := map[string][]byte{}

	dirs := append([]string{}, skeletonDirs...)
	for _, d := range a.StructurePaths() {
		if !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		files[path.Join(d, ".keep")] = nil
	}

	token, err := newAccessToken()
	if err != nil {
		return nil, err
	}
	creds, err := yaml.Marshal(&credentials{
		WorkspaceID: id,
		ServerHost:  res.ServerHost,
		ServerPort:  res.ServerPort,
		ServerUser:  res.ServerUser,
		AccessToken: token,
		IssuedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}
	files[credentialsFile] = creds

	script, err := renderSetupScript(id, root, res)
	if err != nil {
		return nil, err
	}
	files[setupScript] = script

	readme, err := render(readmeTemplate, newReadmeData(id, res, t, a))
	if err != nil {
		return nil, err
	}
	files[readmeFile] = readme

	docs, err := render(docsTemplate, struct{ Task *task.Task }{t})
	if err != nil {
		return nil, err
	}
	files[docsStub] = docs

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	manifest := &Manifest{
		ID:                 id,
		TaskID:             t.ID,
		DeveloperID:        res.DeveloperID,
		ServerID:           res.ServerID,
		Path:               root,
		RequiredComponents: a.RequiredComponents,
		Dependencies:       a.Dependencies,
		AuthSetup:          a.AuthSetup,
		RoutingSetup:       a.RoutingSetup,
		APIIntegration:     a.APIIntegration,
		Directories:        dirs,
		Files:              names,
		CreatedAt:          now,
	}

	previous := p.latest(ctx, pair)

	for _, name := range names {
		full, err := scoped(root, name)
		if err != nil {
			return nil, err
		}
		if err := p.storage.Write(ctx, full, files[name]); err != nil {
			return nil, cerr.WrapStorageWriteError("workspace file", err)
		}
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if previous != nil {
		logManifestDiff(ctx, root, previous, manifest)
	}
	if err := p.storage.Write(ctx, path.Join(root, manifestFile), data); err != nil {
		return nil, cerr.WrapStorageWriteError("workspace manifest", err)
	}
	if err := p.storage.Write(ctx, path.Join(pair, latestFile), []byte(root)); err != nil {
		slog.WarnContext(ctx, "failed to record latest workspace", "path", pair, "error", err)
	}

	slog.InfoContext(ctx, "workspace provisioned", "workspace_id", id, "path", root, "server_id", res.ServerID, "files", len(names))
	return &Workspace{
		ID:        id,
		ServerID:  res.ServerID,
		Path:      root,
		Manifest:  manifest,
		CreatedAt: now,
	}, nil
}

// Manifest loads the stored manifest for a workspace path.
func (p *Provisioner) Manifest(ctx context.Context, root string) (*Manifest, error) {
	m, err := p.readManifest(ctx, root)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, cerr.NewError(cerr.NotFound, "workspace not found", err)
		}
		return nil, err
	}
	return m, nil
}

// MarkReleased stamps the manifest. Files are kept. Releasing an unknown or
// already released workspace is a no-op.
func (p *Provisioner) MarkReleased(ctx context.Context, root, id string) error {
	m, err := p.readManifest(ctx, root)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if m.ID != id || m.ReleasedAt != nil {
		return nil
	}
	now := p.now()
	m.ReleasedAt = &now
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := p.storage.Write(ctx, path.Join(root, manifestFile), data); err != nil {
		return cerr.WrapStorageWriteError("workspace manifest", err)
	}
	return nil
}

// Discard removes the files of a workspace that never became active. It only
// acts when the manifest under ws.Path was written for ws.
func (p *Provisioner) Discard(ctx context.Context, ws *Workspace) error {
	m, err := p.readManifest(ctx, ws.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if m.ID != ws.ID || m.Path != ws.Path {
		return nil
	}
	subdirs := append([]string{}, m.Directories...)
	subdirs = append(subdirs, path.Dir(credentialsFile))
	if err := storage.DeleteTree(ctx, p.storage, m.Path, subdirs...); err != nil {
		return cerr.WrapStorageDeleteError("workspace", err)
	}
	return nil
}

func (p *Provisioner) readManifest(ctx context.Context, root string) (*Manifest, error) {
	data, err := p.storage.Read(ctx, path.Join(root, manifestFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, cerr.WrapStorageReadError("workspace manifest", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// latest returns the manifest of the previous attempt for a pair, or nil.
func (p *Provisioner) latest(ctx context.Context, pair string) *Manifest {
	root, err := p.storage.Read(ctx, path.Join(pair, latestFile))
	if err != nil {
		return nil
	}
	m, err := p.readManifest(ctx, strings.TrimSpace(string(root)))
	if err != nil {
		return nil
	}
	return m
}

func logManifestDiff(ctx context.Context, root string, before, after *Manifest) {
	a, err := yaml.Marshal(before)
	if err != nil {
		return
	}
	b, err := yaml.Marshal(after)
	if err != nil {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: before.ID,
		ToFile:   after.ID,
		Context:  1,
	})
	if err != nil || diff == "" {
		return
	}
	slog.InfoContext(ctx, "workspace re-provisioned", "path", root, "previous_id", before.ID, "diff", diff)
}

func newAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
