package routing

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
)

// PostgresPhoneRepo reads gateway phone config via database/sql (pgx driver).
type PostgresPhoneRepo struct {
	db *sql.DB
}

func NewPostgresPhoneRepo(db *sql.DB) *PostgresPhoneRepo { return &PostgresPhoneRepo{db: db} }

func (r *PostgresPhoneRepo) FindByGatewayID(ctx context.Context, gatewayID string) (GatewayPhone, error) {
	const q = `
		SELECT id, gateway_id, org_id, phone_number, auto_answer, is_active,
		       COALESCE(system_instruction, ''), COALESCE(voice_name, '')
		FROM gateway_phones
		WHERE gateway_id = $1`

	var p GatewayPhone
	err := r.db.QueryRowContext(ctx, q, gatewayID).Scan(
		&p.ID, &p.GatewayID, &p.OrgID, &p.PhoneNumber,
		&p.AutoAnswer, &p.IsActive, &p.SystemInstruction, &p.VoiceName)
	if errors.Is(err, sql.ErrNoRows) {
		return GatewayPhone{}, ErrPhoneNotFound
	}
	if err != nil {
		return GatewayPhone{}, err
	}
	return p, nil
}

// PostgresRuleRepo reads routing rules via database/sql (pgx driver).
type PostgresRuleRepo struct {
	db *sql.DB
}

func NewPostgresRuleRepo(db *sql.DB) *PostgresRuleRepo { return &PostgresRuleRepo{db: db} }

func (r *PostgresRuleRepo) ListActiveByOrg(ctx context.Context, orgID string) ([]InboundRoutingRule, error) {
	const q = `
		SELECT id, org_id, name, match_type, COALESCE(caller_pattern, ''),
		       action, COALESCE(forward_to, ''),
		       COALESCE(system_instruction, ''), COALESCE(voice_name, ''),
		       COALESCE(time_start, ''), COALESCE(time_end, ''),
		       COALESCE(days_of_week, ''), priority, is_active
		FROM inbound_routing_rules
		WHERE org_id = $1 AND is_active = TRUE
		ORDER BY priority ASC`

	rows, err := r.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InboundRoutingRule
	for rows.Next() {
		var rule InboundRoutingRule
		var days string
		if err := rows.Scan(
			&rule.ID, &rule.OrgID, &rule.Name, &rule.MatchType, &rule.CallerPattern,
			&rule.Action, &rule.ForwardTo,
			&rule.SystemInstruction, &rule.VoiceName,
			&rule.TimeStart, &rule.TimeEnd,
			&days, &rule.Priority, &rule.IsActive,
		); err != nil {
			return nil, err
		}
		rule.DaysOfWeek = parseDays(days)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// parseDays decodes the comma-separated days_of_week column ("0,1,5").
// Unparseable entries are dropped rather than failing the whole rule set.
func parseDays(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, piece := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(piece))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, n)
	}
	return out
}
