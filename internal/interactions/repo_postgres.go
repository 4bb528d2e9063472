package interactions

import (
	"context"
	"database/sql"
)

// PostgresRepo persists interactions via database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec Interaction) error {
	const q = `
		INSERT INTO interactions
			(id, org_id, call_id, gateway_id, caller_number, action, status,
			 rule_id, rule_name, contact_id, reject_reason, forward_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, nullable(rec.OrgID), rec.CallID, rec.GatewayID, rec.CallerNumber,
		rec.Action, string(rec.Status),
		nullable(rec.RuleID), nullable(rec.RuleName), nullable(rec.ContactID),
		nullable(rec.RejectReason), nullable(rec.ForwardTo), rec.CreatedAt)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
