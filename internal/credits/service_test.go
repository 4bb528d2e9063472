package credits

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryService_PurchaseDebitsBalance(t *testing.T) {
	s := NewMemoryService()
	s.SetBalance("org-1", "USD", 5000)

	p, err := s.InitiatePurchase(context.Background(), "org-1", 1500, "minutes")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if p.LedgerID == "" {
		t.Fatalf("purchase has no ledger id")
	}
	if p.Currency != "USD" {
		t.Fatalf("expected USD, got %q", p.Currency)
	}

	b, err := s.GetBalance(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.BalanceMinor != 3500 {
		t.Fatalf("expected 3500 after debit, got %d", b.BalanceMinor)
	}
}

func TestMemoryService_InsufficientFunds(t *testing.T) {
	s := NewMemoryService()
	s.SetBalance("org-1", "USD", 100)

	_, err := s.InitiatePurchase(context.Background(), "org-1", 500, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestMemoryService_ValidatesArguments(t *testing.T) {
	s := NewMemoryService()

	if _, err := s.GetBalance(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := s.InitiatePurchase(context.Background(), "org-1", 0, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := s.GetBalance(context.Background(), "org-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
