package interactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for interaction records.
// It MUST be append-only; no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, rec Interaction) error
}

// Service logs inbound-call interactions.
//
// Callers treat logging as best-effort: a failed insert never blocks or
// reverses a routing decision that was already sent to the gateway.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRecord = errors.New("interactions: invalid record")

func (s *Service) Append(ctx context.Context, rec Interaction) error {
	if s.repo == nil {
		return errors.New("interactions: repository not configured")
	}
	if rec.CallID == "" || rec.GatewayID == "" {
		return ErrInvalidRecord
	}
	if rec.Action == "" {
		return ErrInvalidRecord
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusInProgress
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, rec)
}
