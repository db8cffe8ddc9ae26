package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/vendabot/vendabot/internal/config"
)

// NewClient creates a streaming client for the configured provider endpoint.
func NewClient(cfg config.LLMConfig) Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &client{api: openai.NewClientWithConfig(clientConfig)}
}

type client struct {
	api *openai.Client
}

func (c *client) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error) {
	return c.api.CreateChatCompletionStream(ctx, req)
}
