package routing

// Externally persisted configuration read by the router. CRUD for these
// records lives elsewhere in the platform; this subsystem only reads.

// GatewayPhone binds a gateway device to an org and its answering defaults.
type GatewayPhone struct {
	ID          string `json:"id" db:"id"`
	GatewayID   string `json:"gateway_id" db:"gateway_id"`
	OrgID       string `json:"org_id" db:"org_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	AutoAnswer bool `json:"auto_answer" db:"auto_answer"`
	IsActive   bool `json:"is_active" db:"is_active"`

	// Per-gateway AI defaults, overridable by a matched rule.
	SystemInstruction string `json:"system_instruction,omitempty" db:"system_instruction"`
	VoiceName         string `json:"voice_name,omitempty" db:"voice_name"`
}

type MatchType string

const (
	MatchAll         MatchType = "all"
	MatchPrefix      MatchType = "prefix"
	MatchExact       MatchType = "exact"
	MatchContactOnly MatchType = "contact_only"
)

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionReject  Action = "reject"
	ActionForward Action = "forward"
)

// InboundRoutingRule is one org-scoped rule. Rules are evaluated in
// ascending priority order; the first active match wins.
type InboundRoutingRule struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"org_id" db:"org_id"`
	Name  string `json:"name" db:"name"`

	MatchType MatchType `json:"match_type" db:"match_type"`

	// CallerPattern is the literal caller number for exact matches or a
	// prefix optionally ending in a single trailing * wildcard.
	CallerPattern string `json:"caller_pattern,omitempty" db:"caller_pattern"`

	Action    Action `json:"action" db:"action"`
	ForwardTo string `json:"forward_to,omitempty" db:"forward_to"`

	SystemInstruction string `json:"system_instruction,omitempty" db:"system_instruction"`
	VoiceName         string `json:"voice_name,omitempty" db:"voice_name"`

	// Optional time window in gateway-local "HH:MM". A window spanning
	// midnight (start > end) wraps.
	TimeStart string `json:"time_start,omitempty" db:"time_start"`
	TimeEnd   string `json:"time_end,omitempty" db:"time_end"`

	// DaysOfWeek restricts the rule to listed days (0=Sunday..6=Saturday).
	// Empty means every day.
	DaysOfWeek []int `json:"days_of_week,omitempty" db:"days_of_week"`

	// Priority orders evaluation, ascending: lower evaluates first.
	Priority int  `json:"priority" db:"priority"`
	IsActive bool `json:"is_active" db:"is_active"`
}

// Decision is the Answer/Reject/Forward verdict for one inbound call,
// produced once and held only until it is consumed at connect time or
// discarded at call end.
type Decision struct {
	Action Action `json:"action"`
	CallID string `json:"call_id"`

	OrgID          string `json:"org_id,omitempty"`
	GatewayPhoneID string `json:"gateway_phone_id,omitempty"`

	RuleID   string `json:"rule_id,omitempty"`
	RuleName string `json:"rule_name,omitempty"`

	ContactID   string `json:"contact_id,omitempty"`
	ContactName string `json:"contact_name,omitempty"`

	RejectReason string `json:"reject_reason,omitempty"`
	ForwardTo    string `json:"forward_to,omitempty"`

	// AI overrides carried into the session config at connect time.
	SystemInstruction string `json:"system_instruction,omitempty"`
	VoiceName         string `json:"voice_name,omitempty"`
}
