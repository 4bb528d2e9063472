package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "kb:context:"
	defaultCacheTTL = 5 * time.Minute
)

// Retriever resolves a knowledge-base id to conversation context that gets
// appended to the session's system instruction.
//
// Fail-open contract: knowledge context is an enhancement, never a
// dependency. Every failure path (unknown id, dead cache, dead database)
// logs and returns the instruction unchanged; a call must still be answered
// when the knowledge base is broken.
type Retriever struct {
	db       *sql.DB
	rdb      *redis.Client
	log      *slog.Logger
	cacheTTL time.Duration
}

func NewRetriever(db *sql.DB, rdb *redis.Client, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{db: db, rdb: rdb, log: log, cacheTTL: defaultCacheTTL}
}

// Augment appends knowledge context for knowledgeBaseID to instruction.
// Empty id or any lookup failure returns instruction as-is.
func (r *Retriever) Augment(ctx context.Context, instruction, knowledgeBaseID string) string {
	if knowledgeBaseID == "" {
		return instruction
	}
	kbContext := r.contextFor(ctx, knowledgeBaseID)
	if kbContext == "" {
		return instruction
	}
	if instruction == "" {
		return "Reference material for this call:\n" + kbContext
	}
	return instruction + "\n\nReference material for this call:\n" + kbContext
}

func (r *Retriever) contextFor(ctx context.Context, knowledgeBaseID string) string {
	// Read-through cache: redis first, postgres on miss. Both optional.
	if r.rdb != nil {
		cached, err := r.rdb.Get(ctx, cacheKeyPrefix+knowledgeBaseID).Result()
		if err == nil {
			return cached
		}
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("knowledge cache read failed", "knowledge_base_id", knowledgeBaseID, "err", err)
		}
	}

	if r.db == nil {
		return ""
	}

	const q = `
		SELECT summary
		FROM knowledge_documents
		WHERE knowledge_base_id = $1 AND summary <> ''
		ORDER BY updated_at DESC
		LIMIT 1`

	var summary string
	err := r.db.QueryRowContext(ctx, q, knowledgeBaseID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Info("knowledge base has no usable documents", "knowledge_base_id", knowledgeBaseID)
		return ""
	}
	if err != nil {
		r.log.Warn("knowledge lookup failed", "knowledge_base_id", knowledgeBaseID, "err", err)
		return ""
	}

	if r.rdb != nil {
		if err := r.rdb.Set(ctx, cacheKeyPrefix+knowledgeBaseID, summary, r.cacheTTL).Err(); err != nil {
			r.log.Warn("knowledge cache write failed", "knowledge_base_id", knowledgeBaseID, "err", err)
		}
	}
	return summary
}
