package routing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/contacts"
	"github.com/krantiutils/ring-ai-sub000/internal/interactions"
)

const rejectReasonNoRule = "no_matching_rule"

// PhoneRepo resolves the gateway device to its org-scoped phone config.
type PhoneRepo interface {
	FindByGatewayID(ctx context.Context, gatewayID string) (GatewayPhone, error)
}

var ErrPhoneNotFound = errors.New("routing: gateway phone not found")

// RuleRepo lists an org's active rules in ascending priority order.
type RuleRepo interface {
	ListActiveByOrg(ctx context.Context, orgID string) ([]InboundRoutingRule, error)
}

// Router computes the Answer/Reject/Forward verdict for an inbound call.
//
// Route is decision-only: no writes, no sends. LogInteraction is the
// side-effecting step and runs after the decision has already been sent to
// the gateway, so a slow or failing insert can never block the answer path.
//
// Defect policy: when configuration is missing or broken the router answers.
// An over-answered call can still be handled gracefully; a dropped call
// cannot.
type Router struct {
	phones       PhoneRepo
	rules        RuleRepo
	contacts     contacts.Repository
	interactions *interactions.Service
	log          *slog.Logger

	// now is injectable for deterministic time-window tests. Windows are
	// evaluated in this clock's location (gateway-local by deployment
	// convention, not a guaranteed contract).
	now func() time.Time
}

func NewRouter(phones PhoneRepo, rules RuleRepo, contactRepo contacts.Repository, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		phones:   phones,
		rules:    rules,
		contacts: contactRepo,
		log:      log,
		now:      time.Now,
	}
}

// WithInteractions attaches the interaction log used by LogInteraction.
func (r *Router) WithInteractions(svc *interactions.Service) *Router {
	r.interactions = svc
	return r
}

// Route evaluates the configured rules for one ringing call. It never
// returns an error: unknown gateways answer with no org context, and every
// internal failure degrades toward answering.
func (r *Router) Route(ctx context.Context, gatewayID, callID, callerNumber string) Decision {
	phone, err := r.lookupPhone(ctx, gatewayID)
	if err != nil || !phone.IsActive {
		if err != nil && !errors.Is(err, ErrPhoneNotFound) {
			r.log.Warn("gateway phone lookup failed, answering without org context",
				"gateway_id", gatewayID, "err", err)
		} else {
			r.log.Info("gateway not configured or inactive, answering without org context",
				"gateway_id", gatewayID)
		}
		return Decision{Action: ActionAnswer, CallID: callID}
	}

	base := Decision{
		CallID:            callID,
		OrgID:             phone.OrgID,
		GatewayPhoneID:    phone.ID,
		SystemInstruction: phone.SystemInstruction,
		VoiceName:         phone.VoiceName,
	}

	rules, err := r.rules.ListActiveByOrg(ctx, phone.OrgID)
	if err != nil {
		r.log.Warn("rule load failed, falling back to gateway default",
			"org_id", phone.OrgID, "err", err)
		rules = nil
	}

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		matched, contact := r.ruleMatches(ctx, rule, phone.OrgID, callerNumber)
		if !matched {
			continue
		}
		return r.applyRule(base, rule, contact)
	}

	if phone.AutoAnswer {
		d := base
		d.Action = ActionAnswer
		return d
	}
	d := base
	d.Action = ActionReject
	d.RejectReason = rejectReasonNoRule
	return d
}

func (r *Router) lookupPhone(ctx context.Context, gatewayID string) (GatewayPhone, error) {
	if r.phones == nil {
		return GatewayPhone{}, ErrPhoneNotFound
	}
	return r.phones.FindByGatewayID(ctx, gatewayID)
}

func (r *Router) applyRule(base Decision, rule InboundRoutingRule, contact *contacts.Contact) Decision {
	d := base
	d.RuleID = rule.ID
	d.RuleName = rule.Name
	if rule.SystemInstruction != "" {
		d.SystemInstruction = rule.SystemInstruction
	}
	if rule.VoiceName != "" {
		d.VoiceName = rule.VoiceName
	}
	if contact != nil {
		d.ContactID = contact.ID
		d.ContactName = contact.Name
	}

	switch rule.Action {
	case ActionReject:
		d.Action = ActionReject
		d.RejectReason = "rule:" + rule.Name
	case ActionForward:
		if rule.ForwardTo == "" {
			// Configuration defect: a forward rule with no target. Answering
			// keeps the caller on the line instead of dropping them.
			r.log.Error("forward rule has no target, degrading to answer",
				"rule_id", rule.ID, "rule_name", rule.Name, "org_id", rule.OrgID)
			d.Action = ActionAnswer
		} else {
			d.Action = ActionForward
			d.ForwardTo = rule.ForwardTo
		}
	default:
		d.Action = ActionAnswer
	}
	return d
}

func (r *Router) ruleMatches(ctx context.Context, rule InboundRoutingRule, orgID, callerNumber string) (bool, *contacts.Contact) {
	if !r.insideWindow(rule) {
		return false, nil
	}

	switch rule.MatchType {
	case MatchAll:
		return true, nil
	case MatchPrefix:
		if rule.CallerPattern == "" {
			return false, nil
		}
		// A bare "*" leaves an empty prefix, which matches every caller.
		prefix := strings.TrimSuffix(rule.CallerPattern, "*")
		return strings.HasPrefix(callerNumber, prefix), nil
	case MatchExact:
		return rule.CallerPattern != "" && callerNumber == rule.CallerPattern, nil
	case MatchContactOnly:
		if r.contacts == nil {
			return false, nil
		}
		c, err := r.contacts.FindByPhone(ctx, orgID, callerNumber)
		if err != nil {
			if !errors.Is(err, contacts.ErrNotFound) {
				r.log.Warn("contact lookup failed during routing", "org_id", orgID, "err", err)
			}
			return false, nil
		}
		return true, &c
	default:
		r.log.Warn("unknown match type, skipping rule", "rule_id", rule.ID, "match_type", rule.MatchType)
		return false, nil
	}
}

func (r *Router) insideWindow(rule InboundRoutingRule) bool {
	now := r.now()

	if len(rule.DaysOfWeek) > 0 {
		day := int(now.Weekday())
		found := false
		for _, d := range rule.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if rule.TimeStart == "" || rule.TimeEnd == "" {
		return true
	}
	start, err1 := minuteOfDay(rule.TimeStart)
	end, err2 := minuteOfDay(rule.TimeEnd)
	if err1 != nil || err2 != nil {
		r.log.Warn("unparseable time window, treating rule as always-on",
			"rule_id", rule.ID, "start", rule.TimeStart, "end", rule.TimeEnd)
		return true
	}

	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Overnight window, e.g. 22:00-06:00.
	return cur >= start || cur <= end
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// LogInteraction persists the inbound-call record for a decision that was
// already sent. Best-effort: failures are logged, never propagated.
func (r *Router) LogInteraction(ctx context.Context, d Decision, gatewayID, callerNumber string) {
	if r.interactions == nil {
		return
	}

	status := interactions.StatusInProgress
	if d.Action == ActionReject {
		status = interactions.StatusCompleted
	}

	err := r.interactions.Append(ctx, interactions.Interaction{
		OrgID:        d.OrgID,
		CallID:       d.CallID,
		GatewayID:    gatewayID,
		CallerNumber: callerNumber,
		Action:       string(d.Action),
		Status:       status,
		RuleID:       d.RuleID,
		RuleName:     d.RuleName,
		ContactID:    d.ContactID,
		RejectReason: d.RejectReason,
		ForwardTo:    d.ForwardTo,
	})
	if err != nil {
		r.log.Warn("interaction log failed", "call_id", d.CallID, "err", err)
	}
}
