package analyzer

import (
	"context"
	"fmt"

	"github.com/kazz187/devguild/internal/config"
)

// New builds the configured backend. Provider "none" yields a nil Analyzer,
// which BestEffort turns into Default for every call.
func New(ctx context.Context, env *config.AnalyzerEnv) (Analyzer, error) {
	switch env.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		if env.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai analyzer")
		}
		return NewOpenAIAnalyzer(ctx, env.OpenAIAPIKey, env.OpenAIBaseURL, env.OpenAIModel)
	case "claude":
		return NewClaudeAnalyzer(env.ClaudeMaxTurns, ""), nil
	default:
		return nil, fmt.Errorf("unknown analyzer provider: %s", env.Provider)
	}
}
