// Package analyzer turns a task's title and description into a structured
// plan for the repository a developer will work in. Analysis is advisory:
// callers go through BestEffort, which never fails.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Dependencies struct {
	External []string `json:"external" yaml:"external"`
	Internal []string `json:"internal" yaml:"internal"`
}

type RepoAnalysis struct {
	RequiredComponents []string          `json:"requiredComponents" yaml:"required_components"`
	Dependencies       Dependencies      `json:"dependencies" yaml:"dependencies"`
	AuthSetup          bool              `json:"authSetup" yaml:"auth_setup"`
	RoutingSetup       bool              `json:"routingSetup" yaml:"routing_setup"`
	APIIntegration     bool              `json:"apiIntegration" yaml:"api_integration"`
	ComponentStructure map[string]string `json:"componentStructure" yaml:"component_structure"`
}

// Default is the analysis used whenever the real one is unavailable: every
// flag false and every list empty.
func Default() *RepoAnalysis {
	return &RepoAnalysis{
		RequiredComponents: []string{},
		Dependencies:       Dependencies{External: []string{}, Internal: []string{}},
		ComponentStructure: map[string]string{},
	}
}

func (a *RepoAnalysis) IsEmpty() bool {
	return len(a.RequiredComponents) == 0 &&
		len(a.Dependencies.External) == 0 &&
		len(a.Dependencies.Internal) == 0 &&
		len(a.ComponentStructure) == 0 &&
		!a.AuthSetup && !a.RoutingSetup && !a.APIIntegration
}

// Summary is a short human-readable digest for generated docs.
func (a *RepoAnalysis) Summary() string {
	if a.IsEmpty() {
		return "No automated analysis is available for this task."
	}
	var b strings.Builder
	if len(a.RequiredComponents) > 0 {
		fmt.Fprintf(&b, "Components: %s.\n", strings.Join(a.RequiredComponents, ", "))
	}
	if len(a.Dependencies.External) > 0 {
		fmt.Fprintf(&b, "External dependencies: %s.\n", strings.Join(a.Dependencies.External, ", "))
	}
	if len(a.Dependencies.Internal) > 0 {
		fmt.Fprintf(&b, "Internal dependencies: %s.\n", strings.Join(a.Dependencies.Internal, ", "))
	}
	var flags []string
	if a.AuthSetup {
		flags = append(flags, "authentication")
	}
	if a.RoutingSetup {
		flags = append(flags, "routing")
	}
	if a.APIIntegration {
		flags = append(flags, "API integration")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "Needs: %s.\n", strings.Join(flags, ", "))
	}
	return strings.TrimSpace(b.String())
}

// StructurePaths returns the component structure keys in sorted order.
func (a *RepoAnalysis) StructurePaths() []string {
	paths := make([]string, 0, len(a.ComponentStructure))
	for p := range a.ComponentStructure {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type Analyzer interface {
	Analyze(ctx context.Context, title, description string) (*RepoAnalysis, error)
}

var ErrMalformedResponse = errors.New("malformed analysis response")

// Parse extracts a RepoAnalysis from raw model output. Code fences and prose
// around the JSON object are tolerated.
func Parse(raw string) (*RepoAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	a := Default()
	if err := json.Unmarshal([]byte(raw[start:end+1]), a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	a.normalize()
	return a, nil
}

func (a *RepoAnalysis) normalize() {
	a.RequiredComponents = clean(a.RequiredComponents)
	a.Dependencies.External = clean(a.Dependencies.External)
	a.Dependencies.Internal = clean(a.Dependencies.Internal)
	if a.ComponentStructure == nil {
		a.ComponentStructure = map[string]string{}
	}
	for k := range a.ComponentStructure {
		if strings.TrimSpace(k) == "" || strings.HasPrefix(k, "/") || strings.Contains(k, "..") {
			delete(a.ComponentStructure, k)
		}
	}
}

// clean trims, drops blanks and de-duplicates while keeping order.
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

const systemPrompt = `You plan repository layouts for software tasks.
Reply with a single JSON object and nothing else, using exactly these keys:
{"requiredComponents": [string], "dependencies": {"external": [string], "internal": [string]},
 "authSetup": bool, "routingSetup": bool, "apiIntegration": bool,
 "componentStructure": {"relative/path": "purpose"}}`

func userPrompt(title, description string) string {
	return fmt.Sprintf("Task title: %s\n\nTask description:\n%s", title, description)
}
