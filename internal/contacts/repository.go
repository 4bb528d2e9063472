package contacts

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("contacts: not found")

// Repository is the read contract consumed by routing (contact_only rules)
// and the tool layer (lookup_account). Contact CRUD lives elsewhere in the
// platform; this subsystem only reads.
type Repository interface {
	FindByPhone(ctx context.Context, orgID, phoneNumber string) (Contact, error)
}

// MemoryRepo is an in-memory repository for tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	contacts []Contact
}

func NewMemoryRepo(contacts ...Contact) *MemoryRepo {
	return &MemoryRepo{contacts: contacts}
}

func (r *MemoryRepo) Add(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, c)
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, orgID, phoneNumber string) (Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if c.OrgID == orgID && c.PhoneNumber == phoneNumber {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

// PostgresRepo reads contacts via database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindByPhone(ctx context.Context, orgID, phoneNumber string) (Contact, error) {
	const q = `
		SELECT id, org_id, name, phone_number, created_at
		FROM contacts
		WHERE org_id = $1 AND phone_number = $2
		LIMIT 1`

	var c Contact
	err := r.db.QueryRowContext(ctx, q, orgID, phoneNumber).
		Scan(&c.ID, &c.OrgID, &c.Name, &c.PhoneNumber, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}
