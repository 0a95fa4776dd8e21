package workspace

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/kazz187/devguild/internal/analyzer"
	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/shellformat"
)

var readmeTemplate = template.Must(template.New("readme").Parse(`# {{ .Task.Title }}

Workspace ` + "`{{ .ID }}`" + ` on server ` + "`{{ .ServerID }}`" + `.

{{ .Task.Description }}

## Analysis

{{ .Analysis.Summary }}
{{- if .Structure }}

| Path | Purpose |
| ---- | ------- |
{{- range .Structure }}
| {{ .Path }} | {{ .Purpose }} |
{{- end }}
{{- end }}

## Requirements
{{ range .Task.Requirements }}
- {{ . }}
{{- else }}
- None listed.
{{- end }}

## Acceptance criteria
{{ range .Task.AcceptanceCriteria }}
- [ ] {{ . }}
{{- else }}
- None listed.
{{- end }}

## Getting started

Run ` + "`./setup.sh`" + ` to sync this workspace to the reserved server.
`))

var docsTemplate = template.Must(template.New("docs").Parse(`# Onboarding notes for {{ .Task.Title }}

Record design decisions, open questions and hand-off notes here.
`))

type structureRow struct {
	Path    string
	Purpose string
}

type readmeData struct {
	ID        string
	ServerID  string
	Task      *task.Task
	Analysis  *analyzer.RepoAnalysis
	Structure []structureRow
}

func newReadmeData(id string, res *slot.Reservation, t *task.Task, a *analyzer.RepoAnalysis) readmeData {
	rows := make([]structureRow, 0, len(a.ComponentStructure))
	for _, p := range a.StructurePaths() {
		rows = append(rows, structureRow{Path: p, Purpose: a.ComponentStructure[p]})
	}
	return readmeData{ID: id, ServerID: res.ServerID, Task: t, Analysis: a, Structure: rows}
}

func render(tmpl *template.Template, data any) ([]byte, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return []byte(b.String()), nil
}

// renderSetupScript builds the onboarding script for the reserved server.
// Every interpolated value is shell-quoted and the result must parse.
func renderSetupScript(id, remotePath string, res *slot.Reservation) ([]byte, error) {
	quoted := make(map[string]string, 4)
	for k, v := range map[string]string{
		"host": res.ServerHost,
		"user": res.ServerUser,
		"id":   id,
		"path": remotePath,
	} {
		q, err := shellformat.Quote(v)
		if err != nil {
			return nil, err
		}
		quoted[k] = q
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n\n")
	fmt.Fprintf(&b, "SERVER_HOST=%s\n", quoted["host"])
	fmt.Fprintf(&b, "SERVER_PORT=%s\n", strconv.Itoa(res.ServerPort))
	fmt.Fprintf(&b, "SERVER_USER=%s\n", quoted["user"])
	fmt.Fprintf(&b, "WORKSPACE_ID=%s\n", quoted["id"])
	fmt.Fprintf(&b, "REMOTE_PATH=%s\n\n", quoted["path"])
	b.WriteString(`cd "$(dirname "$0")"` + "\n")
	b.WriteString(`echo "Preparing workspace ${WORKSPACE_ID} on ${SERVER_USER}@${SERVER_HOST}:${SERVER_PORT}"` + "\n")
	b.WriteString(`ssh -p "$SERVER_PORT" "${SERVER_USER}@${SERVER_HOST}" mkdir -p "$REMOTE_PATH"` + "\n")
	b.WriteString(`rsync -az -e "ssh -p ${SERVER_PORT}" --exclude .credentials ./ "${SERVER_USER}@${SERVER_HOST}:${REMOTE_PATH}/"` + "\n")
	b.WriteString(`echo "Workspace ${WORKSPACE_ID} is ready"` + "\n")

	script, err := shellformat.Format(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to format setup script: %w", err)
	}
	return []byte(script), nil
}
