package aisession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultAcquireTimeout = 10 * time.Second

// PoolConfig controls admission and session defaults.
type PoolConfig struct {
	// MaxSessions bounds concurrent live sessions across the process.
	MaxSessions int

	// AcquireTimeout is how long Acquire waits for a free slot before
	// reporting exhaustion. Zero applies the default.
	AcquireTimeout time.Duration

	// DefaultSystemInstruction is injected into configs that carry none.
	DefaultSystemInstruction string

	// Defaults merged into every session config.
	APIKey string
	Model  string
	Voice  string
}

// Factory builds a session from a resolved config. Injectable for tests.
type Factory func(cfg SessionConfig, log *slog.Logger) *Session

// Pool is the capacity-bounded registry of live sessions. Admission is a
// buffered channel: waiting acquirers queue fairly and honor their timeout.
// The registry is the only state shared across calls in the process.
type Pool struct {
	cfg     PoolConfig
	slots   chan struct{}
	factory Factory
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPool(cfg PoolConfig, factory Factory, log *slog.Logger) *Pool {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if factory == nil {
		factory = NewSession
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxSessions),
		factory:  factory,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Acquire reserves a slot, connects a new session and registers it under a
// fresh id. It blocks until a slot frees up or the timeout elapses, then
// fails with PoolExhaustedError carrying the configured max. If the session
// fails to start after the slot was reserved, the slot is released before
// the error propagates.
func (p *Pool) Acquire(ctx context.Context, cfg SessionConfig) (string, *Session, error) {
	cfg = p.applyDefaults(cfg)

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return "", nil, &PoolExhaustedError{Max: p.cfg.MaxSessions}
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}

	sess := p.factory(cfg, p.log)
	if err := sess.Connect(ctx); err != nil {
		<-p.slots
		return "", nil, err
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.sessions[id] = sess
	p.mu.Unlock()

	p.log.Debug("session acquired", "session_id", id, "in_use", len(p.slots), "max", p.cfg.MaxSessions)
	return id, sess, nil
}

func (p *Pool) applyDefaults(cfg SessionConfig) SessionConfig {
	if cfg.APIKey == "" {
		cfg.APIKey = p.cfg.APIKey
	}
	if cfg.Model == "" {
		cfg.Model = p.cfg.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = p.cfg.Voice
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = p.cfg.DefaultSystemInstruction
	}
	return cfg
}

// Release closes the session and frees its slot. Unknown ids are a no-op,
// so double-release from racing teardown paths is safe.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	if err := sess.Close(); err != nil {
		p.log.Warn("session close failed", "session_id", id, "err", err)
	}
	<-p.slots
	p.log.Debug("session released", "session_id", id, "in_use", len(p.slots), "max", p.cfg.MaxSessions)
}

// TeardownAll closes every live session and drains the registry. Used on
// process shutdown.
func (p *Pool) TeardownAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Release(id)
	}
}

// GetSession returns the session for id, or nil if absent.
func (p *Pool) GetSession(id string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[id]
}

// ListSessions returns a snapshot of registered session ids.
func (p *Pool) ListSessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	return ids
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int { return len(p.slots) }

// Max reports the configured session bound.
func (p *Pool) Max() int { return p.cfg.MaxSessions }
