package contacts

import "time"

// Contact is an org-scoped phone book entry.
//
// Tenancy invariant: OrgID is required on every row; lookups are always
// org-scoped so one org's callers never resolve against another's book.
type Contact struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"org_id" db:"org_id"`
	Name        string    `json:"name" db:"name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
