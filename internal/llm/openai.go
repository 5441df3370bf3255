package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

type openaiBackend struct {
	client *openai.Client
	model  string
}

func newOpenAI(apiKey, model, baseURL string) *openaiBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiBackend{client: openai.NewClientWithConfig(cfg), model: model}
}

func (b *openaiBackend) reply(ctx context.Context, p Prompt, maxTokens int64) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               b.model,
		MaxCompletionTokens: int(maxTokens),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.system()},
			{Role: openai.ChatMessageRoleUser, Content: p.Utterance},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
