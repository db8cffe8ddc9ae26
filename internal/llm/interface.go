package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Client is the minimal streaming subset of the provider used by the chat
// session; it is easy to mock in tests.
type Client interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (Stream, error)
}

// Stream is one in-flight streaming completion. Recv returns io.EOF when the
// provider signals end-of-turn.
type Stream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}
