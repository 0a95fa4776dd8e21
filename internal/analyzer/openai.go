package analyzer

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type OpenAIAnalyzer struct {
	chatModel model.BaseChatModel
}

func NewOpenAIAnalyzer(ctx context.Context, apiKey, baseURL, modelName string) (*OpenAIAnalyzer, error) {
	temperature := float32(0)
	cfg := &openai.ChatModelConfig{
		Model:       modelName,
		APIKey:      apiKey,
		Temperature: &temperature,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &OpenAIAnalyzer{chatModel: cm}, nil
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, title, description string) (*RepoAnalysis, error) {
	resp, err := a.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt(title, description)),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return Parse(resp.Content)
}
