// Package workspace lays out a developer's working copy for an assignment:
// a directory skeleton, a credential bundle, an onboarding script bound to
// the reserved server, a README and a manifest. Everything is written through
// storage.Storage beneath the workspace path; nothing is written elsewhere.
package workspace

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kazz187/devguild/internal/analyzer"
)

const (
	manifestFile    = "workspace.yaml"
	credentialsFile = ".credentials/credentials.yaml"
	setupScript     = "setup.sh"
	readmeFile      = "README.md"
	docsStub        = "docs/ONBOARDING.md"

	// latestFile sits in the pair directory and names the root of the most
	// recent attempt for that task and developer.
	latestFile = "latest"
)

// skeletonDirs always exist in a fresh workspace, each holding a .keep file.
var skeletonDirs = []string{"src", "tests", "docs"}

// Manifest is the structural record stored as workspace.yaml.
type Manifest struct {
	ID                 string                `yaml:"id" json:"id"`
	TaskID             string                `yaml:"task_id" json:"task_id"`
	DeveloperID        string                `yaml:"developer_id" json:"developer_id"`
	ServerID           string                `yaml:"server_id" json:"server_id"`
	Path               string                `yaml:"path" json:"path"`
	RequiredComponents []string              `yaml:"required_components" json:"required_components"`
	Dependencies       analyzer.Dependencies `yaml:"dependencies" json:"dependencies"`
	AuthSetup          bool                  `yaml:"auth_setup" json:"auth_setup"`
	RoutingSetup       bool                  `yaml:"routing_setup" json:"routing_setup"`
	APIIntegration     bool                  `yaml:"api_integration" json:"api_integration"`
	Directories        []string              `yaml:"directories" json:"directories"`
	Files              []string              `yaml:"files" json:"files"`
	CreatedAt          time.Time             `yaml:"created_at" json:"created_at"`
	ReleasedAt         *time.Time            `yaml:"released_at,omitempty" json:"released_at,omitempty"`
}

// Workspace is what the provisioner hands back to its caller.
type Workspace struct {
	ID        string
	ServerID  string
	Path      string
	Manifest  *Manifest
	CreatedAt time.Time
}

// PairPath is the directory holding every attempt for a task and developer.
func PairPath(taskID, developerID string) string {
	return path.Join("workspaces", taskID, developerID)
}

// Path is the storage prefix of one provisioning attempt. Attempts never
// share a directory, so discarding one cannot touch another's files.
func Path(taskID, developerID, reservationID string) string {
	return path.Join(PairPath(taskID, developerID), reservationID)
}

// NewID derives the workspace id. The reservation id makes each attempt
// distinct even for the same task and developer.
func NewID(taskID, developerID, reservationID string) string {
	return fmt.Sprintf("%s-%s-%s", taskID, developerID, reservationID)
}

// scoped joins rel onto root and refuses anything that would land outside it.
func scoped(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) {
		return "", fmt.Errorf("invalid workspace path %q", rel)
	}
	cleaned := path.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes workspace", rel)
	}
	return path.Join(root, cleaned), nil
}
