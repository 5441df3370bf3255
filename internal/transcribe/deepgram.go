package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramEngine transcribes with Deepgram's prerecorded endpoint.
type DeepgramEngine struct {
	client *api.Client
	model  string
}

// NewDeepgramEngine returns an engine for model. An empty host uses the
// public API.
func NewDeepgramEngine(apiKey, model, host string) *DeepgramEngine {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})

	c := client.NewREST(apiKey, &interfaces.ClientOptions{Host: host})
	return &DeepgramEngine{client: api.New(c), model: model}
}

func (e *DeepgramEngine) Transcribe(ctx context.Context, wavPath, language string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open chunk: %w", err)
	}
	defer func() { _ = f.Close() }()

	res, err := e.client.FromStream(ctx, f, &interfaces.PreRecordedTranscriptionOptions{
		Model:       e.model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	if res == nil || res.Results == nil {
		return "", nil
	}

	var parts []string
	for _, ch := range res.Results.Channels {
		if len(ch.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(ch.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
