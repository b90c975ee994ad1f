// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     stream
// Description: Log viewing session tying connection, subscription and buffers
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/msto63/kflogs/internal/api"
	"github.com/msto63/kflogs/internal/logging"
)

// JobSource provides job data and historical logs
type JobSource interface {
	GetJob(ctx context.Context, id int) (*api.Job, error)
	FetchLogs(ctx context.Context, id int) ([]api.LogChunk, error)
}

// UpdateKind tells what changed in a session
type UpdateKind int

const (
	UpdateJob UpdateKind = iota
	UpdateHistory
	UpdateLine
	UpdateConnected
	UpdateSubscribed
	UpdateNotice
	UpdateLiveStopped
)

// String returns the string representation of the kind
func (k UpdateKind) String() string {
	switch k {
	case UpdateJob:
		return "job"
	case UpdateHistory:
		return "history"
	case UpdateLine:
		return "line"
	case UpdateConnected:
		return "connected"
	case UpdateSubscribed:
		return "subscribed"
	case UpdateNotice:
		return "notice"
	case UpdateLiveStopped:
		return "live-stopped"
	default:
		return "unknown"
	}
}

// Update is published whenever session state changes. Err is set for
// notices and, when known, for UpdateLiveStopped.
type Update struct {
	Kind  UpdateKind
	Token string
	Err   error
}

// SessionConfig configures a Session
type SessionConfig struct {
	JobID        int
	Source       JobSource
	Dialer       Dialer
	Endpoint     Endpoint
	ReadyTimeout time.Duration
	Logger       *logging.Logger
	// NewToken overrides token generation, mainly for tests
	NewToken func() string
	// UpdateBuffer is the capacity of the update channel of each mount
	UpdateBuffer int
}

// Snapshot is a consistent view of a mounted session
type Snapshot struct {
	Token   string
	Job     *api.Job
	Lines   []string
	Settled bool
	State   State
	// Subscribed is set once the subscribe frame was written
	Subscribed bool
	// SubscribeErr is the failure of the single subscribe attempt
	SubscribeErr error
	LiveStopped  bool
}

// LiveEnded reports whether no further live line can arrive on this mount:
// the stream stopped or the subscribe attempt failed.
func (s Snapshot) LiveEnded() bool {
	return s.LiveStopped || s.SubscribeErr != nil
}

// mount is the state of one mounted lifetime of a session. Continuations
// hold a pointer to their mount and commit only while it is alive.
type mount struct {
	token  string
	ctx    context.Context
	cancel context.CancelFunc

	conn    *Conn
	buf     *Buffer
	sub     *Subscriber
	updates chan Update

	alive       bool
	job         *api.Job
	liveStopped bool
}

// Session views the logs of one job. Mount opens a fresh connection and
// starts loading, Unmount tears everything down. A session may be mounted
// again after Unmount; each mount gets its own token and buffers.
type Session struct {
	cfg    SessionConfig
	logger *logging.Logger

	mu  sync.Mutex
	cur *mount
}

var (
	// ErrMounted is returned by Mount on an already mounted session
	ErrMounted = errors.New("session already mounted")
	// ErrNotMounted is returned by operations that need a mounted session
	ErrNotMounted = errors.New("session not mounted")
)

// NewSession creates an unmounted session
func NewSession(cfg SessionConfig) *Session {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.NewToken == nil {
		cfg.NewToken = NewToken
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Session{
		cfg:    cfg,
		logger: logger.With("job_id", cfg.JobID),
	}
}

// Mount opens the connection and starts the job and history fetches. It
// returns without waiting for any of them.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return ErrMounted
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &mount{
		token:   s.cfg.NewToken(),
		ctx:     mctx,
		cancel:  cancel,
		buf:     NewBuffer(),
		sub:     NewSubscriber(),
		updates: make(chan Update, s.cfg.UpdateBuffer),
		alive:   true,
	}
	m.conn = Open(mctx, s.cfg.Dialer, s.cfg.Endpoint(m.token), WithReadyTimeout(s.cfg.ReadyTimeout))
	s.cur = m

	s.logger.Debug("session mounted", "token", m.token, "url", m.conn.URL())

	go s.loadJob(m)
	go s.loadHistory(m)
	go s.pumpLive(m)

	return nil
}

// Unmount closes the connection, discards the buffers and abandons every
// in-flight operation of the current mount. It is a no-op when unmounted.
func (s *Session) Unmount() {
	s.mu.Lock()
	m := s.cur
	if m == nil {
		s.mu.Unlock()
		return
	}
	m.alive = false
	s.cur = nil
	s.mu.Unlock()

	m.conn.Close()
	m.cancel()
	m.buf.Reset()

	s.logger.Debug("session unmounted", "token", m.token)
}

// Remount unmounts and mounts again with a fresh token and connection
func (s *Session) Remount(ctx context.Context) error {
	s.Unmount()
	return s.Mount(ctx)
}

// Mounted reports whether the session is mounted
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Updates returns the update channel of the current mount, nil when
// unmounted. The channel is not closed on Unmount.
func (s *Session) Updates() <-chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.updates
}

// Token returns the correlation token of the current mount
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.token
}

// Lines returns historical ++ live of the current mount
func (s *Session) Lines() []string {
	s.mu.Lock()
	m := s.cur
	s.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.buf.Lines()
}

// Snapshot returns the state of the current mount
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	m := s.cur
	if m == nil {
		s.mu.Unlock()
		return Snapshot{State: StateClosed}
	}
	snap := Snapshot{
		Token:       m.token,
		Job:         m.job,
		LiveStopped: m.liveStopped,
	}
	s.mu.Unlock()

	snap.Lines = m.buf.Lines()
	snap.Settled = m.buf.Settled()
	snap.State = m.conn.State()
	done, err := m.sub.Result()
	snap.Subscribed = done && err == nil
	snap.SubscribeErr = err
	return snap
}

// EnsureSubscribed evaluates the subscription trigger for the current
// mount. It may be called any number of times; at most one subscribe
// frame is sent per mount.
func (s *Session) EnsureSubscribed() error {
	s.mu.Lock()
	m := s.cur
	s.mu.Unlock()
	if m == nil {
		return ErrNotMounted
	}
	return s.subscribe(m)
}

// commit runs fn under the session lock if m is still the live mount
func (s *Session) commit(m *mount, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != m || !m.alive {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}

// publish delivers u to the mount's consumer unless the mount is gone
func (s *Session) publish(m *mount, u Update) {
	if !s.commit(m, nil) {
		return
	}
	u.Token = m.token
	select {
	case m.updates <- u:
	case <-m.ctx.Done():
	}
}

func (s *Session) notice(m *mount, err error) {
	s.logger.Warn("session notice", "token", m.token, "code", CodeOf(err).String(), "error", err)
	s.publish(m, Update{Kind: UpdateNotice, Err: err})
}

func (s *Session) loadJob(m *mount) {
	job, err := s.cfg.Source.GetJob(m.ctx, s.cfg.JobID)
	if err != nil {
		if m.ctx.Err() == nil {
			s.notice(m, newError(CodeFetch, "load job", err))
		}
		return
	}

	if !s.commit(m, func() { m.job = job }) {
		return
	}
	s.publish(m, Update{Kind: UpdateJob})

	if err := s.subscribe(m); err != nil && m.ctx.Err() == nil {
		s.notice(m, err)
	}
}

func (s *Session) subscribe(m *mount) error {
	var job *api.Job
	if !s.commit(m, func() { job = m.job }) {
		return nil
	}

	attempted, err := m.sub.Evaluate(m.ctx, job, m.conn)
	if !attempted || err != nil {
		return err
	}

	s.logger.Info("subscribed to live logs", "token", m.token, "job", job.Name, "namespace", job.Meta.Namespace)
	s.publish(m, Update{Kind: UpdateSubscribed})
	return nil
}

func (s *Session) loadHistory(m *mount) {
	chunks, err := s.cfg.Source.FetchLogs(m.ctx, s.cfg.JobID)
	if err != nil {
		if !s.commit(m, m.buf.SettleHistory) {
			return
		}
		s.notice(m, newError(CodeFetch, "load history", err))
		s.publish(m, Update{Kind: UpdateHistory})
		return
	}

	lines := api.FlattenChunks(chunks)
	if !s.commit(m, func() { m.buf.SetHistory(lines) }) {
		return
	}
	s.publish(m, Update{Kind: UpdateHistory})
}

func (s *Session) pumpLive(m *mount) {
	select {
	case <-m.conn.Ready():
		s.publish(m, Update{Kind: UpdateConnected})
	case <-m.conn.Done():
	}

	for raw := range m.conn.Messages() {
		line, err := DecodeLine(raw)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "token", m.token, "error", err)
			continue
		}
		if !s.commit(m, func() { m.buf.AppendLive(line) }) {
			return
		}
		s.publish(m, Update{Kind: UpdateLine})
	}

	cause := m.conn.Err()
	if !s.commit(m, func() { m.liveStopped = true }) {
		return
	}
	s.logger.Info("live updates stopped", "token", m.token, "error", cause)
	s.publish(m, Update{Kind: UpdateLiveStopped, Err: cause})
}
