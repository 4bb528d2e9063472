package aisession

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newTestPool(t *testing.T, max int, timeout time.Duration) *Pool {
	t.Helper()
	url := fakeLive(t, nil)
	cfg := PoolConfig{
		MaxSessions:              max,
		AcquireTimeout:           timeout,
		DefaultSystemInstruction: "You answer phone calls.",
		APIKey:                   "test-key",
		Model:                    "models/gemini-test",
		Voice:                    "Puck",
	}
	return NewPool(cfg, func(sc SessionConfig, log *slog.Logger) *Session {
		sc.Endpoint = url
		return NewSession(sc, log)
	}, nil)
}

func TestPool_ExhaustionCarriesMax(t *testing.T) {
	p := newTestPool(t, 1, 50*time.Millisecond)
	defer p.TeardownAll()

	ctx := context.Background()
	id1, _, err := p.Acquire(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, _, err = p.Acquire(ctx, SessionConfig{})
	var exhausted *PoolExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected PoolExhaustedError, got %v", err)
	}
	if exhausted.Max != 1 {
		t.Fatalf("expected max 1 in error, got %d", exhausted.Max)
	}

	// Releasing frees the slot for the next acquire.
	p.Release(id1)
	id2, _, err := p.Acquire(ctx, SessionConfig{})
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	p.Release(id2)
}

func TestPool_ReleaseUnknownIDNoop(t *testing.T) {
	p := newTestPool(t, 2, time.Second)
	defer p.TeardownAll()

	p.Release("no-such-id")
	if p.InUse() != 0 {
		t.Fatalf("unknown release must not touch slots")
	}
}

func TestPool_DefaultInstructionInjected(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	defer p.TeardownAll()

	id, sess, err := p.Acquire(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release(id)

	if sess.Config().SystemInstruction != "You answer phone calls." {
		t.Fatalf("expected default instruction, got %q", sess.Config().SystemInstruction)
	}

	// Explicit instruction wins over the default.
	p2 := newTestPool(t, 1, time.Second)
	defer p2.TeardownAll()
	id2, sess2, err := p2.Acquire(context.Background(), SessionConfig{SystemInstruction: "custom"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p2.Release(id2)
	if sess2.Config().SystemInstruction != "custom" {
		t.Fatalf("explicit instruction must not be overridden, got %q", sess2.Config().SystemInstruction)
	}
}

func TestPool_ConnectFailureDoesNotLeakSlot(t *testing.T) {
	cfg := PoolConfig{
		MaxSessions:    1,
		AcquireTimeout: 100 * time.Millisecond,
		APIKey:         "test-key",
		Model:          "models/gemini-test",
	}
	url := fakeLive(t, nil)
	calls := 0
	p := NewPool(cfg, func(sc SessionConfig, log *slog.Logger) *Session {
		calls++
		if calls == 1 {
			// Unroutable endpoint: connect must fail fast.
			sc.Endpoint = "ws://127.0.0.1:1"
			sc.ConnectTimeout = 100 * time.Millisecond
		} else {
			sc.Endpoint = url
		}
		return NewSession(sc, log)
	}, nil)
	defer p.TeardownAll()

	if _, _, err := p.Acquire(context.Background(), SessionConfig{}); err == nil {
		t.Fatalf("expected connect failure")
	}
	if p.InUse() != 0 {
		t.Fatalf("slot leaked after failed connect: in_use=%d", p.InUse())
	}

	id, _, err := p.Acquire(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("acquire after failed connect: %v", err)
	}
	p.Release(id)
}

func TestPool_TeardownAllDrains(t *testing.T) {
	p := newTestPool(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		if _, _, err := p.Acquire(context.Background(), SessionConfig{}); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if got := len(p.ListSessions()); got != 3 {
		t.Fatalf("expected 3 registered sessions, got %d", got)
	}

	p.TeardownAll()
	if got := len(p.ListSessions()); got != 0 {
		t.Fatalf("expected empty registry after teardown, got %d", got)
	}
	if p.InUse() != 0 {
		t.Fatalf("expected all slots free after teardown, got %d", p.InUse())
	}
}

func TestPool_GetSession(t *testing.T) {
	p := newTestPool(t, 1, time.Second)
	defer p.TeardownAll()

	id, sess, err := p.Acquire(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if p.GetSession(id) != sess {
		t.Fatalf("GetSession must return the registered session")
	}
	if p.GetSession("missing") != nil {
		t.Fatalf("unknown id must return nil")
	}
}
