package interactions

import "time"

// Interaction is an append-only record of one inbound call and the routing
// verdict it received.
//
// Invariants:
// - Records are never updated or deleted by this subsystem; downstream
//   billing/analytics own completion updates.
// - org_id may be empty when the gateway was unknown (fail-open answer).
//
// Storage recommendation (Postgres): table interactions, INSERT-only here.
type Interaction struct {
	ID        string `json:"id" db:"id"`
	OrgID     string `json:"org_id,omitempty" db:"org_id"`
	CallID    string `json:"call_id" db:"call_id"`
	GatewayID string `json:"gateway_id" db:"gateway_id"`

	CallerNumber string `json:"caller_number" db:"caller_number"`

	// Action is the routing verdict: answer, reject or forward.
	Action string `json:"action" db:"action"`

	Status Status `json:"status" db:"status"`

	// Matched-rule metadata, empty when no rule matched.
	RuleID   string `json:"rule_id,omitempty" db:"rule_id"`
	RuleName string `json:"rule_name,omitempty" db:"rule_name"`

	ContactID    string `json:"contact_id,omitempty" db:"contact_id"`
	RejectReason string `json:"reject_reason,omitempty" db:"reject_reason"`
	ForwardTo    string `json:"forward_to,omitempty" db:"forward_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	// StatusInProgress marks answered or forwarded calls still running.
	StatusInProgress Status = "in_progress"
	// StatusCompleted marks rejected calls; nothing further will happen.
	StatusCompleted Status = "completed"
)
