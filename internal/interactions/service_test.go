package interactions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_FillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	err := s.Append(context.Background(), Interaction{
		CallID:       "c1",
		GatewayID:    "g1",
		CallerNumber: "+9771234567",
		Action:       "answer",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	recs := repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ID == "" {
		t.Fatalf("id must be generated")
	}
	if recs[0].Status != StatusInProgress {
		t.Fatalf("expected default status in_progress, got %q", recs[0].Status)
	}
	if !recs[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", recs[0].CreatedAt)
	}
}

func TestAppend_RejectsInvalid(t *testing.T) {
	s := NewService(NewMemoryRepo())

	if err := s.Append(context.Background(), Interaction{GatewayID: "g1", Action: "answer"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for missing call_id, got %v", err)
	}
	if err := s.Append(context.Background(), Interaction{CallID: "c1", GatewayID: "g1"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for missing action, got %v", err)
	}
}

func TestAppend_ExplicitStatusKept(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)

	err := s.Append(context.Background(), Interaction{
		CallID:    "c2",
		GatewayID: "g1",
		Action:    "reject",
		Status:    StatusCompleted,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.Records()[0].Status != StatusCompleted {
		t.Fatalf("explicit status must be kept")
	}
}
