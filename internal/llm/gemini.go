package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client *genai.Client
	model  string
}

func newGemini(apiKey, model, baseURL string) (*geminiBackend, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiBackend{client: client, model: model}, nil
}

func (b *geminiBackend) reply(ctx context.Context, p Prompt, maxTokens int64) (string, error) {
	res, err := b.client.Models.GenerateContent(ctx, b.model,
		genai.Text(p.Utterance),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.system(), genai.RoleUser),
			MaxOutputTokens:   int32(maxTokens),
		})
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}
