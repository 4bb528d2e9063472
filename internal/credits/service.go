package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/krantiutils/ring-ai-sub000/pkg/utils"

	"github.com/google/uuid"
)

// Credit accounting consumed by mid-call tool execution.
//
// Money invariants (inherited from the platform ledger):
// - No balance update without a ledger entry.
// - The ledger is append-only.
// - All money operations run inside a DB transaction with the account row
//   locked.
//
// Tenancy invariant: org_id is required and enforced in every query.

var (
	ErrNotFound          = errors.New("credits: account not found")
	ErrInsufficientFunds = errors.New("credits: insufficient funds")
	ErrInvalidArgument   = errors.New("credits: invalid argument")
)

type Balance struct {
	OrgID        string    `json:"org_id"`
	Currency     string    `json:"currency"`
	BalanceMinor int64     `json:"balance_minor"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Purchase struct {
	LedgerID    string    `json:"ledger_id"`
	OrgID       string    `json:"org_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service is the contract the tool executor consumes. The Postgres
// implementation is authoritative; MemoryService backs tests.
type Service interface {
	GetBalance(ctx context.Context, orgID string) (Balance, error)
	InitiatePurchase(ctx context.Context, orgID string, amountMinor int64, reference string) (Purchase, error)
}

// PostgresService posts purchases against the platform's credit tables.
type PostgresService struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, clock: time.Now}
}

func (s *PostgresService) GetBalance(ctx context.Context, orgID string) (Balance, error) {
	if orgID == "" {
		return Balance{}, ErrInvalidArgument
	}

	const q = `
		SELECT org_id, currency, balance_minor, updated_at
		FROM credit_balances
		WHERE org_id = $1`

	var b Balance
	err := s.db.QueryRowContext(ctx, q, orgID).
		Scan(&b.OrgID, &b.Currency, &b.BalanceMinor, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, ErrNotFound
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

// InitiatePurchase debits the org's credit balance for an in-call purchase.
// The ledger insert and the balance projection update happen in one
// transaction; a concurrent purchase on the same org serializes on the
// locked balance row.
func (s *PostgresService) InitiatePurchase(ctx context.Context, orgID string, amountMinor int64, reference string) (Purchase, error) {
	if orgID == "" || amountMinor <= 0 {
		return Purchase{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	ledgerID := uuid.NewString()
	var out Purchase

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var currency string
		var balance int64
		const lockQ = `
			SELECT currency, balance_minor
			FROM credit_balances
			WHERE org_id = $1
			FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lockQ, orgID).Scan(&currency, &balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if balance < amountMinor {
			return ErrInsufficientFunds
		}

		const ledgerQ = `
			INSERT INTO credit_ledger (id, org_id, type, amount_minor, currency, external_ref, created_at)
			VALUES ($1, $2, 'purchase', $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, ledgerQ, ledgerID, orgID, -amountMinor, currency, reference, now); err != nil {
			return err
		}

		const balanceQ = `
			UPDATE credit_balances
			SET balance_minor = balance_minor - $2, updated_at = $3
			WHERE org_id = $1`
		if _, err := tx.ExecContext(ctx, balanceQ, orgID, amountMinor, now); err != nil {
			return err
		}

		out = Purchase{
			LedgerID:    ledgerID,
			OrgID:       orgID,
			AmountMinor: amountMinor,
			Currency:    currency,
			Reference:   reference,
			CreatedAt:   now,
		}
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	return out, nil
}
