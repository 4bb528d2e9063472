package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryService is an in-memory credit store for tests.
type MemoryService struct {
	mu       sync.Mutex
	balances map[string]Balance
}

func NewMemoryService() *MemoryService {
	return &MemoryService{balances: make(map[string]Balance)}
}

func (s *MemoryService) SetBalance(orgID, currency string, balanceMinor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[orgID] = Balance{
		OrgID:        orgID,
		Currency:     currency,
		BalanceMinor: balanceMinor,
		UpdatedAt:    time.Now().UTC(),
	}
}

func (s *MemoryService) GetBalance(ctx context.Context, orgID string) (Balance, error) {
	if orgID == "" {
		return Balance{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[orgID]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryService) InitiatePurchase(ctx context.Context, orgID string, amountMinor int64, reference string) (Purchase, error) {
	if orgID == "" || amountMinor <= 0 {
		return Purchase{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[orgID]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	if b.BalanceMinor < amountMinor {
		return Purchase{}, ErrInsufficientFunds
	}
	b.BalanceMinor -= amountMinor
	b.UpdatedAt = time.Now().UTC()
	s.balances[orgID] = b

	return Purchase{
		LedgerID:    uuid.NewString(),
		OrgID:       orgID,
		AmountMinor: amountMinor,
		Currency:    b.Currency,
		Reference:   reference,
		CreatedAt:   b.UpdatedAt,
	}, nil
}
