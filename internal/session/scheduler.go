package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjawhar/wispr-bot/internal/metrics"
)

// scheduler drives the chunk loop of each recording session: open a capture
// window, wait one chunk, stop, wait the grace interval, collect and dispatch,
// then reopen while recording. Only the loop touches the connection's capture
// methods, so windows of one session never overlap.
type scheduler struct {
	chunk      time.Duration
	grace      time.Duration
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// onFailure tears the session down after a capture error. It runs on its
	// own goroutine once the loop has exited.
	onFailure func(s *Session, err error)
}

// start turns recording on, launching the loop if none is alive. A loop that
// is still draining after a stop is re-armed instead of replaced.
func (sc *scheduler) start(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return ErrNoSession
	}
	if s.recording {
		return ErrAlreadyRecording
	}
	s.recording = true
	if s.running {
		return nil
	}

	s.running = true
	s.done = make(chan struct{})
	go sc.run(s, s.done)
	return nil
}

// stop turns recording off. The loop finishes the current window, dispatches
// it, and goes idle.
func (sc *scheduler) stop(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return ErrNotRecording
	}
	s.recording = false
	return nil
}

func (sc *scheduler) run(s *Session, done chan struct{}) {
	defer close(done)
	log := sc.logger.With("guild", s.guildID, "channel", s.channelID)
	log.Debug("chunk loop started")

	for {
		if err := s.conn.StartCapture(); err != nil {
			sc.fail(s, log, &CaptureError{GuildID: s.guildID, Op: "start", Err: err})
			return
		}
		s.setState(StateCapturing)

		if !wait(s.ctx, sc.chunk) {
			if err := s.conn.StopCapture(); err != nil {
				log.Debug("stop capture on removal", "error", err)
			}
			if _, err := s.conn.Collect(); err != nil {
				log.Debug("collect on removal", "error", err)
			}
			sc.finish(s, log)
			return
		}

		if err := s.conn.StopCapture(); err != nil {
			sc.fail(s, log, &CaptureError{GuildID: s.guildID, Op: "stop", Err: err})
			return
		}
		s.setState(StateDraining)

		cancelled := !wait(s.ctx, sc.grace)
		w, err := s.conn.Collect()
		if err != nil {
			sc.fail(s, log, &CaptureError{GuildID: s.guildID, Op: "collect", Err: err})
			return
		}
		if cancelled || s.isRemoved() {
			log.Debug("session removed, dropping window", "window", w.ID)
			sc.finish(s, log)
			return
		}

		sc.dispatcher.Dispatch(w)

		if !sc.next(s) {
			log.Debug("chunk loop stopped")
			return
		}
	}
}

// next reports whether the loop should open another window. When it should
// not, the loop is marked finished under the same lock so a concurrent start
// either re-arms this loop or launches a fresh one, never both.
func (sc *scheduler) next(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording && !s.removed {
		return true
	}
	s.running = false
	s.state = StateIdle
	return false
}

func (sc *scheduler) finish(s *Session, log *slog.Logger) {
	s.mu.Lock()
	s.running = false
	s.recording = false
	s.state = StateIdle
	s.mu.Unlock()
	log.Debug("chunk loop exited")
}

func (sc *scheduler) fail(s *Session, log *slog.Logger, err error) {
	sc.finish(s, log)
	sc.metrics.CaptureError()
	log.Error("capture failed, closing session", "error", err)
	if sc.onFailure != nil {
		go sc.onFailure(s, err)
	}
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
