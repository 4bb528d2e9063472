package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CallRecord binds one live call to its AI session. The manager owns the
// record exclusively from creation (CALL_CONNECTED) to teardown.
type CallRecord struct {
	CallID       string
	GatewayID    string
	CallerNumber string
	OrgID        string

	SessionID string
	Session   *aisession.Session

	StartedAt time.Time

	// orgCapHeld records whether this call actually took an org cap slot.
	// Fail-open admissions must not decrement a slot another call holds.
	orgCapHeld bool
}

// SessionPool is the slice of the pool the manager needs. Injectable for
// tests; *aisession.Pool satisfies it.
type SessionPool interface {
	Acquire(ctx context.Context, cfg aisession.SessionConfig) (string, *aisession.Session, error)
	Release(id string)
}

// InstructionAugmenter adds knowledge-base context to a system instruction.
// Implementations are fail-open; *knowledge.Retriever satisfies it.
type InstructionAugmenter interface {
	Augment(ctx context.Context, instruction, knowledgeBaseID string) string
}

var ErrCallExists = errors.New("calls: call already has a live session")

// OrgCapError reports the per-org concurrent call cap, distinct from pool
// exhaustion: the process had room, the org did not.
type OrgCapError struct {
	OrgID string
	Cap   int
}

func (e *OrgCapError) Error() string {
	return fmt.Sprintf("calls: org %s at concurrent call cap (%d)", e.OrgID, e.Cap)
}

// ManagerConfig tunes the optional per-org call cap.
type ManagerConfig struct {
	// OrgCallCap bounds concurrent calls per org when > 0 and a redis
	// client is attached. Enforcement is fail-open on redis errors.
	OrgCallCap int

	// OrgCapTTL protects against leaked cap slots on process crash.
	OrgCapTTL time.Duration
}

// Manager maps call ids to AI sessions, one live session per call id.
type Manager struct {
	pool      SessionPool
	knowledge InstructionAugmenter
	rdb       *redis.Client
	cfg       ManagerConfig
	log       *slog.Logger
	clock     func() time.Time

	mu      sync.Mutex
	records map[string]*CallRecord
}

func NewManager(pool SessionPool, knowledge InstructionAugmenter, rdb *redis.Client, cfg ManagerConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.OrgCapTTL <= 0 {
		cfg.OrgCapTTL = 2 * time.Hour
	}
	return &Manager{
		pool:      pool,
		knowledge: knowledge,
		rdb:       rdb,
		cfg:       cfg,
		log:       log,
		clock:     time.Now,
		records:   make(map[string]*CallRecord),
	}
}

// CreateParams describes one call to bring up.
type CreateParams struct {
	CallID       string
	GatewayID    string
	CallerNumber string
	OrgID        string

	// Config carries routing-decision overrides; pool defaults fill gaps.
	Config aisession.SessionConfig

	// KnowledgeBaseID optionally augments the system instruction with
	// retrieved context. Missing or broken references are ignored.
	KnowledgeBaseID string
}

// CreateSession acquires a session from the pool and registers the call.
// A call id that already has a live record fails with ErrCallExists before
// any new session is created, closing the double-answer race.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (*CallRecord, error) {
	m.mu.Lock()
	if _, exists := m.records[p.CallID]; exists {
		m.mu.Unlock()
		return nil, ErrCallExists
	}
	// Reserve the call id before the slow path so a concurrent create for
	// the same call fails fast rather than acquiring a second session.
	m.records[p.CallID] = nil
	m.mu.Unlock()

	record, err := m.createLocked(ctx, p)
	if err != nil {
		m.mu.Lock()
		delete(m.records, p.CallID)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.records[p.CallID] = record
	m.mu.Unlock()
	return record, nil
}

func (m *Manager) createLocked(ctx context.Context, p CreateParams) (*CallRecord, error) {
	capped, err := m.acquireOrgCap(ctx, p.OrgID)
	if err != nil {
		return nil, err
	}

	cfg := p.Config
	if m.knowledge != nil && p.KnowledgeBaseID != "" {
		cfg.SystemInstruction = m.knowledge.Augment(ctx, cfg.SystemInstruction, p.KnowledgeBaseID)
	}

	sessionID, sess, err := m.pool.Acquire(ctx, cfg)
	if err != nil {
		if capped {
			m.releaseOrgCap(p.OrgID)
		}
		return nil, err
	}

	return &CallRecord{
		CallID:       p.CallID,
		GatewayID:    p.GatewayID,
		CallerNumber: p.CallerNumber,
		OrgID:        p.OrgID,
		SessionID:    sessionID,
		Session:      sess,
		StartedAt:    m.clock().UTC(),
		orgCapHeld:   capped,
	}, nil
}

// acquireOrgCap reports whether a cap slot was taken. Redis being down is
// not a reason to refuse calls.
func (m *Manager) acquireOrgCap(ctx context.Context, orgID string) (bool, error) {
	if m.rdb == nil || m.cfg.OrgCallCap <= 0 || orgID == "" {
		return false, nil
	}
	ok, err := utils.AcquireConcurrencyCap(ctx, m.rdb, orgCapKey(orgID), m.cfg.OrgCallCap, m.cfg.OrgCapTTL)
	if err != nil {
		m.log.Warn("org call cap check failed, allowing call", "org_id", orgID, "err", err)
		return false, nil
	}
	if !ok {
		return false, &OrgCapError{OrgID: orgID, Cap: m.cfg.OrgCallCap}
	}
	return true, nil
}

func (m *Manager) releaseOrgCap(orgID string) {
	if m.rdb == nil || orgID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := utils.ReleaseConcurrencyCap(ctx, m.rdb, orgCapKey(orgID)); err != nil {
		m.log.Warn("org call cap release failed", "org_id", orgID, "err", err)
	}
}

func orgCapKey(orgID string) string { return "callcap:org:" + orgID }

// GetSession returns the live session for callID, or nil.
func (m *Manager) GetSession(callID string) *aisession.Session {
	if rec := m.GetRecord(callID); rec != nil {
		return rec.Session
	}
	return nil
}

// GetRecord returns the call record for callID, or nil.
func (m *Manager) GetRecord(callID string) *CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[callID]
	if rec == nil {
		// nil also covers ids mid-creation; callers see them as absent.
		return nil
	}
	return rec
}

// EndSession releases the pool slot and removes the record. Unknown call
// ids are a no-op, so late CALL_ENDED duplicates are harmless.
func (m *Manager) EndSession(callID string) {
	m.mu.Lock()
	rec := m.records[callID]
	if rec == nil {
		// Unknown or still mid-creation: nothing to release.
		m.mu.Unlock()
		return
	}
	delete(m.records, callID)
	m.mu.Unlock()

	m.pool.Release(rec.SessionID)
	if rec.orgCapHeld {
		m.releaseOrgCap(rec.OrgID)
	}
	m.log.Info("call ended", "call_id", callID, "session_id", rec.SessionID,
		"duration_s", int(m.clock().Sub(rec.StartedAt).Seconds()))
}

// ActiveCallCount is a live gauge of registered calls.
func (m *Manager) ActiveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec != nil {
			n++
		}
	}
	return n
}
