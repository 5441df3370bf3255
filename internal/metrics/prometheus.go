// Package metrics exposes Prometheus instrumentation for sessions, chunk
// capture, transcription and keyword actions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the bot. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	RecordingToggles *prometheus.CounterVec

	// Capture metrics
	ChunksCaptured prometheus.Counter
	EmptyChunks    prometheus.Counter
	CaptureErrors  prometheus.Counter
	ChunkSpeakers  prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionEmpty     prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptsSuppressed  prometheus.Counter

	// Output metrics
	KeywordsFired  *prometheus.CounterVec
	OutputsDropped *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "wispr_active_sessions",
			Help: "Current number of guilds joined to a voice channel",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_sessions_opened_total",
			Help: "Total number of voice sessions opened",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wispr_sessions_closed_total",
			Help: "Total number of voice sessions closed, by reason",
		}, []string{"reason"}),
		RecordingToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wispr_recording_toggles_total",
			Help: "Total number of start/stop transcription requests accepted",
		}, []string{"action"}),

		ChunksCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_chunks_captured_total",
			Help: "Total number of chunk windows handed to transcription",
		}),
		EmptyChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_chunks_empty_total",
			Help: "Total number of chunk windows without any speaker audio",
		}),
		CaptureErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_capture_errors_total",
			Help: "Total number of capture failures that terminated a session",
		}),
		ChunkSpeakers: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wispr_chunk_speakers",
			Help:    "Number of speakers with audio per chunk window",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),

		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_transcription_requests_total",
			Help: "Total number of per-speaker transcription requests",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_transcription_successes_total",
			Help: "Total number of transcriptions that produced text",
		}),
		TranscriptionEmpty: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_transcription_empty_total",
			Help: "Total number of transcriptions that produced no text",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_transcription_failures_total",
			Help: "Total number of failed or timed out transcriptions",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wispr_transcription_duration_seconds",
			Help:    "Duration of transcription engine calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		TranscriptsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "wispr_transcripts_suppressed_total",
			Help: "Total number of transcripts dropped because their session was removed",
		}),

		KeywordsFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wispr_keywords_fired_total",
			Help: "Total number of keyword actions fired",
		}, []string{"trigger", "status"}),
		OutputsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wispr_outputs_dropped_total",
			Help: "Total number of messages not sent, by reason",
		}, []string{"reason"}),
	}
}

// SessionOpened records a newly registered session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed records a session teardown.
func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
}

// RecordingToggled records an accepted start or stop request.
func (m *Metrics) RecordingToggled(action string) {
	if m == nil {
		return
	}
	m.RecordingToggles.WithLabelValues(action).Inc()
}

// ChunkCaptured records a completed chunk window.
func (m *Metrics) ChunkCaptured(speakers int) {
	if m == nil {
		return
	}
	if speakers == 0 {
		m.EmptyChunks.Inc()
		return
	}
	m.ChunksCaptured.Inc()
	m.ChunkSpeakers.Observe(float64(speakers))
}

func (m *Metrics) CaptureError() {
	if m == nil {
		return
	}
	m.CaptureErrors.Inc()
}

func (m *Metrics) TranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// TranscriptionDone records the outcome of one engine call.
func (m *Metrics) TranscriptionDone(durationSeconds float64, text string, err error) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(durationSeconds)
	switch {
	case err != nil:
		m.TranscriptionFailures.Inc()
	case text == "":
		m.TranscriptionEmpty.Inc()
	default:
		m.TranscriptionSuccesses.Inc()
	}
}

func (m *Metrics) TranscriptSuppressed() {
	if m == nil {
		return
	}
	m.TranscriptsSuppressed.Inc()
}

func (m *Metrics) KeywordFired(trigger string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.KeywordsFired.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) OutputDropped(reason string) {
	if m == nil {
		return
	}
	m.OutputsDropped.WithLabelValues(reason).Inc()
}
