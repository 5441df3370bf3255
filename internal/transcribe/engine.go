// Package transcribe turns captured chunk windows into per-speaker text and
// delivers it to the guild's outputs.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/sjawhar/wispr-bot/internal/config"
)

// Engine converts one WAV file into text. Implementations must be safe for
// concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, wavPath, language string) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, wavPath, language string) (string, error)

func (f EngineFunc) Transcribe(ctx context.Context, wavPath, language string) (string, error) {
	return f(ctx, wavPath, language)
}

const defaultDeepgramModel = "nova-2"

// NewEngine builds the engine selected in cfg.
func NewEngine(cfg config.Config) (Engine, error) {
	model := cfg.Transcription.Model

	switch cfg.Transcription.Engine {
	case config.EngineDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("deepgram engine requires WISPR_DEEPGRAM_API_KEY")
		}
		if model == "" || model == "whisper-1" {
			model = defaultDeepgramModel
		}
		return NewDeepgramEngine(cfg.DeepgramAPIKey, model, ""), nil
	case config.EngineOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("openai engine requires WISPR_OPENAI_API_KEY")
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, model, ""), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Transcription.Engine)
	}
}
