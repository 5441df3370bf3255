// Package keyword scans transcripts for trigger words and fires the actions
// bound to them.
package keyword

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Output is where actions post their messages.
type Output interface {
	Send(ctx context.Context, content string) error
}

// Event describes the transcript that matched a trigger.
type Event struct {
	Trigger string
	Speaker string
	Text    string
}

// Action is a side effect bound to a trigger.
type Action interface {
	Fire(ctx context.Context, out Output, ev Event) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, out Output, ev Event) error

func (f ActionFunc) Fire(ctx context.Context, out Output, ev Event) error {
	return f(ctx, out, ev)
}

type entry struct {
	trigger string
	action  Action
}

// Pipeline is an ordered trigger table. Triggers fire in the order they were
// added.
type Pipeline struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries []entry
	onFire  func(trigger string, err error)
}

func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger}
}

// Add registers an action for a trigger. Triggers are matched
// case-insensitively; adding a trigger twice keeps the first action and
// returns false.
func (p *Pipeline) Add(trigger string, action Action) bool {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" || action == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.trigger == trigger {
			return false
		}
	}
	p.entries = append(p.entries, entry{trigger: trigger, action: action})
	return true
}

// OnFire sets a hook called after every action, with the action's error.
func (p *Pipeline) OnFire(hook func(trigger string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFire = hook
}

// Triggers returns the registered triggers in firing order.
func (p *Pipeline) Triggers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.trigger
	}
	return out
}

// Process fires every trigger contained in text, once each, and returns the
// triggers that fired. A failing action is logged and does not stop the
// remaining ones.
func (p *Pipeline) Process(ctx context.Context, text, speaker string, out Output) []string {
	lowered := strings.ToLower(text)

	p.mu.RLock()
	entries := append([]entry(nil), p.entries...)
	hook := p.onFire
	p.mu.RUnlock()

	var fired []string
	for _, e := range entries {
		if !strings.Contains(lowered, e.trigger) {
			continue
		}

		err := e.action.Fire(ctx, out, Event{Trigger: e.trigger, Speaker: speaker, Text: text})
		if err != nil {
			p.logger.Warn("keyword action failed", "trigger", e.trigger, "speaker", speaker, "error", err)
		}
		if hook != nil {
			hook(e.trigger, err)
		}
		fired = append(fired, e.trigger)
	}
	return fired
}
