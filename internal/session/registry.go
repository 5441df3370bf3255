package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Session is one guild's presence in a voice channel.
type Session struct {
	guildID   string
	channelID string
	conn      Connection
	joinedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	recording bool
	running   bool
	removed   bool
	state     State
	done      chan struct{}
}

func newSession(guildID, channelID string, conn Connection) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
		joinedAt:  time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Session) GuildID() string   { return s.guildID }
func (s *Session) ChannelID() string { return s.channelID }

func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		Recording: s.recording,
		State:     s.state.String(),
		JoinedAt:  s.joinedAt,
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) isRemoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

// markRemoved stops recording, cancels pending waits and returns the channel
// the running loop (if any) closes on exit.
func (s *Session) markRemoved() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removed = true
	s.recording = false
	s.cancel()
	if !s.running {
		return nil
	}
	return s.done
}

// Registry maps guild IDs to their live sessions. A guild has at most one
// session, and a session is present only while its connection is valid.
//
// A guild stays reserved from the moment its session is unregistered until
// the old connection has been released, so a new connection for the guild
// never overlaps the one being torn down.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]struct{}
	closing  map[string]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
		closing:  make(map[string]chan struct{}),
	}
}

// Create registers a session for an already open connection.
func (r *Registry) Create(guildID, channelID string, conn Connection) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(guildID) {
		return nil, ErrAlreadyActive
	}
	s := newSession(guildID, channelID, conn)
	r.sessions[guildID] = s
	return s, nil
}

// Open reserves the guild, connects, and registers the resulting session.
// Concurrent callers for the same guild fail with ErrAlreadyActive without
// connecting. If the guild's previous session is still being torn down, Open
// waits for its connection to be released first.
func (r *Registry) Open(ctx context.Context, guildID, channelID string, connector Connector) (*Session, error) {
	r.mu.Lock()
	for {
		released, ok := r.closing[guildID]
		if !ok {
			break
		}
		r.mu.Unlock()
		select {
		case <-released:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
	}
	if r.taken(guildID) {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	r.pending[guildID] = struct{}{}
	r.mu.Unlock()

	conn, err := connector.Connect(ctx, guildID, channelID)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, guildID)

	if err != nil {
		return nil, &CaptureError{GuildID: guildID, Op: "connect", Err: err}
	}
	s := newSession(guildID, channelID, conn)
	r.sessions[guildID] = s
	return s, nil
}

func (r *Registry) taken(guildID string) bool {
	if _, ok := r.sessions[guildID]; ok {
		return true
	}
	if _, ok := r.pending[guildID]; ok {
		return true
	}
	_, ok := r.closing[guildID]
	return ok
}

func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Remove unregisters the guild's session and returns it.
func (r *Registry) Remove(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if ok {
		delete(r.sessions, guildID)
	}
	return s, ok
}

// removeSession unregisters s only if it is still the guild's session. On
// success the guild stays reserved until released is called.
func (r *Registry) removeSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.guildID] != s {
		return false
	}
	delete(r.sessions, s.guildID)
	r.closing[s.guildID] = make(chan struct{})
	return true
}

// released ends the reservation taken by removeSession and wakes callers
// waiting in Open.
func (r *Registry) released(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.closing[guildID]; ok {
		close(ch)
		delete(r.closing, guildID)
	}
}

// Active reports whether the guild has a registered session.
func (r *Registry) Active(guildID string) bool {
	_, ok := r.Get(guildID)
	return ok
}

// List returns snapshots of all sessions ordered by guild ID.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}
