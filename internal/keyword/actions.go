package keyword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sjawhar/wispr-bot/internal/config"
	"github.com/sjawhar/wispr-bot/internal/llm"
)

// MessageAction posts one message per line. Lines may reference {speaker}
// and {trigger}.
type MessageAction struct {
	Lines []string
}

func (a MessageAction) Fire(ctx context.Context, out Output, ev Event) error {
	r := strings.NewReplacer("{speaker}", ev.Speaker, "{trigger}", ev.Trigger)
	for _, line := range a.Lines {
		if err := out.Send(ctx, r.Replace(line)); err != nil {
			return fmt.Errorf("send keyword message: %w", err)
		}
	}
	return nil
}

// LLMAction asks a language model to answer the transcript and posts the
// reply addressed to the speaker.
type LLMAction struct {
	Replier      llm.Replier
	Instructions string
}

func (a LLMAction) Fire(ctx context.Context, out Output, ev Event) error {
	reply, err := a.Replier.Reply(ctx, llm.Prompt{
		Instructions: a.Instructions,
		Trigger:      ev.Trigger,
		Utterance:    ev.Text,
	})
	if err != nil {
		return fmt.Errorf("llm reply: %w", err)
	}
	return out.Send(ctx, ev.Speaker+" "+reply)
}

// ReplierFactory builds the model backing an llm keyword row.
type ReplierFactory func(cfg config.LLMKeyword) (llm.Replier, error)

var errNoFactory = errors.New("no llm client factory configured")

// Build turns the configured keyword table into a pipeline. Rows that cannot
// be built are skipped with a warning.
func Build(rows []config.Keyword, factory ReplierFactory, logger *slog.Logger) *Pipeline {
	p := NewPipeline(logger)

	for _, row := range rows {
		action, err := actionFor(row, factory)
		if err != nil {
			p.logger.Warn("skipping keyword", "trigger", row.Trigger, "error", err)
			continue
		}
		if !p.Add(row.Trigger, action) {
			p.logger.Warn("skipping keyword", "trigger", row.Trigger, "reason", "empty or duplicate trigger")
		}
	}

	return p
}

func actionFor(row config.Keyword, factory ReplierFactory) (Action, error) {
	if row.LLM != nil {
		if factory == nil {
			return nil, errNoFactory
		}
		replier, err := factory(*row.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm replier: %w", err)
		}
		return LLMAction{Replier: replier, Instructions: row.LLM.SystemPrompt}, nil
	}

	if len(row.Messages) == 0 {
		return nil, errors.New("keyword has no action")
	}
	return MessageAction{Lines: append([]string(nil), row.Messages...)}, nil
}
