package analyzer

import (
	"context"
	"errors"
	"fmt"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeAnalyzer runs a single-turn Claude query with no tools.
type ClaudeAnalyzer struct {
	maxTurns int
	cwd      string
}

func NewClaudeAnalyzer(maxTurns int, cwd string) *ClaudeAnalyzer {
	if maxTurns <= 0 {
		maxTurns = 1
	}
	return &ClaudeAnalyzer{maxTurns: maxTurns, cwd: cwd}
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, title, description string) (*RepoAnalysis, error) {
	maxTurns := a.maxTurns
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: systemPrompt,
		Cwd:          a.cwd,
		MaxTurns:     &maxTurns,
	}
	result, err := claudeagent.RunQuerySync(ctx, userPrompt(title, description), opts)
	if err != nil {
		return nil, fmt.Errorf("claude query failed: %w", err)
	}
	if result.Result == nil {
		return nil, errors.New("claude query returned no result")
	}
	if result.Result.IsError {
		return nil, fmt.Errorf("claude query error: %s", result.Result.Result)
	}
	return Parse(result.Result.Result)
}
