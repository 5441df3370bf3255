// Package llm answers keyword prompts spoken in a voice channel with a short
// reply from a hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Replies are posted to a chat channel, so they stay short.
const (
	DefaultMaxTokens = 200
	DefaultTimeout   = 20 * time.Second
)

var (
	ErrEmptyReply     = errors.New("model returned no text")
	ErrEmptyUtterance = errors.New("nothing to reply to")
)

const defaultInstructions = "You are a voice channel assistant. Someone in the channel just spoke to you. Reply in one or two short sentences, in the language they used."

// Prompt is one spoken request for a reply.
type Prompt struct {
	// Instructions replaces the default system prompt when set.
	Instructions string
	// Trigger is the phrase the speaker used to address the bot.
	Trigger      string
	Utterance    string
}

// system renders the system prompt sent with every provider.
func (p Prompt) system() string {
	s := strings.TrimSpace(p.Instructions)
	if s == "" {
		s = defaultInstructions
	}
	if p.Trigger != "" {
		s += fmt.Sprintf(" You were addressed as %q.", p.Trigger)
	}
	return s
}

// Replier answers a prompt with a short reply.
type Replier interface {
	Reply(ctx context.Context, p Prompt) (string, error)
}

type Options struct {
	// BaseURL overrides the provider endpoint.
	BaseURL   string
	MaxTokens int64
	// Timeout bounds each Reply call.
	Timeout   time.Duration
}

// backend maps a prompt onto one provider's API.
type backend interface {
	reply(ctx context.Context, p Prompt, maxTokens int64) (string, error)
}

// ParseModel splits a "provider/model" string.
func ParseModel(model string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("invalid model %q: want provider/model", model)
	}
	return provider, name, nil
}

// New returns a Replier for model served by provider.
func New(provider, apiKey, model string, opts Options) (Replier, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var b backend
	switch provider {
	case ProviderOpenAI:
		b = newOpenAI(apiKey, model, opts.BaseURL)
	case ProviderAnthropic:
		b = newAnthropic(apiKey, model, opts.BaseURL)
	case ProviderGemini:
		g, err := newGemini(apiKey, model, opts.BaseURL)
		if err != nil {
			return nil, err
		}
		b = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want openai, anthropic or gemini)", provider)
	}

	return &replier{provider: provider, backend: b, maxTokens: opts.MaxTokens, timeout: opts.Timeout}, nil
}

type replier struct {
	provider  string
	backend   backend
	maxTokens int64
	timeout   time.Duration
}

func (r *replier) Reply(ctx context.Context, p Prompt) (string, error) {
	p.Utterance = strings.TrimSpace(p.Utterance)
	if p.Utterance == "" {
		return "", ErrEmptyUtterance
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.backend.reply(ctx, p, r.maxTokens)
	if err != nil {
		return "", fmt.Errorf("%s reply: %w", r.provider, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s reply: %w", r.provider, ErrEmptyReply)
	}
	return text, nil
}
