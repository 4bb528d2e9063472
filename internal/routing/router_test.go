package routing

import (
	"context"
	"testing"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/contacts"
	"github.com/krantiutils/ring-ai-sub000/internal/interactions"
)

func activePhone(autoAnswer bool) GatewayPhone {
	return GatewayPhone{
		ID:                "gp-1",
		GatewayID:         "g1",
		OrgID:             "org-1",
		PhoneNumber:       "+9779800000",
		AutoAnswer:        autoAnswer,
		IsActive:          true,
		SystemInstruction: "gateway default instruction",
		VoiceName:         "Puck",
	}
}

func newTestRouter(phone *GatewayPhone, rules []InboundRoutingRule, contactRepo contacts.Repository) *Router {
	phones := NewMemoryPhoneRepo()
	if phone != nil {
		phones.Put(*phone)
	}
	return NewRouter(phones, NewMemoryRuleRepo(rules...), contactRepo, nil)
}

func TestRoute_UnknownGatewayAnswersWithoutOrg(t *testing.T) {
	r := newTestRouter(nil, nil, nil)
	d := r.Route(context.Background(), "g-missing", "c1", "+15551234")
	if d.Action != ActionAnswer {
		t.Fatalf("expected answer, got %q", d.Action)
	}
	if d.OrgID != "" {
		t.Fatalf("unknown gateway must answer without org context, got org %q", d.OrgID)
	}
	if d.CallID != "c1" {
		t.Fatalf("decision must carry call id")
	}
}

func TestRoute_InactiveGatewayAnswersWithoutOrg(t *testing.T) {
	p := activePhone(false)
	p.IsActive = false
	r := newTestRouter(&p, nil, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionAnswer || d.OrgID != "" {
		t.Fatalf("inactive gateway must fail open to answer, got %+v", d)
	}
}

func TestRoute_NoRules(t *testing.T) {
	auto := activePhone(true)
	r := newTestRouter(&auto, nil, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionAnswer {
		t.Fatalf("auto_answer with zero rules must answer, got %q", d.Action)
	}
	if d.SystemInstruction != "gateway default instruction" || d.VoiceName != "Puck" {
		t.Fatalf("gateway defaults must flow into the decision: %+v", d)
	}

	manual := activePhone(false)
	r = newTestRouter(&manual, nil, nil)
	d = r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionReject {
		t.Fatalf("auto_answer=false with zero rules must reject, got %q", d.Action)
	}
	if d.RejectReason != "no_matching_rule" {
		t.Fatalf("expected no_matching_rule, got %q", d.RejectReason)
	}
}

func TestRoute_PriorityOrderFirstMatchWins(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r10", OrgID: "org-1", Name: "later", MatchType: MatchAll, Action: ActionReject, Priority: 10, IsActive: true},
		{ID: "r1", OrgID: "org-1", Name: "first", MatchType: MatchAll, Action: ActionAnswer, Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionAnswer || d.RuleID != "r1" {
		t.Fatalf("priority-1 rule must win, got %+v", d)
	}
}

func TestRoute_InactiveRuleSkipped(t *testing.T) {
	p := activePhone(true)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "off", MatchType: MatchAll, Action: ActionReject, Priority: 1, IsActive: false},
	}
	r := newTestRouter(&p, rules, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionAnswer || d.RuleID != "" {
		t.Fatalf("inactive rule must never be selected, got %+v", d)
	}
}

func TestRoute_PrefixMatching(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "nepal", MatchType: MatchPrefix, CallerPattern: "+9771*",
			Action: ActionAnswer, Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)

	if d := r.Route(context.Background(), "g1", "c1", "+9771234567"); d.Action != ActionAnswer || d.RuleID != "r1" {
		t.Fatalf("expected prefix match, got %+v", d)
	}
	if d := r.Route(context.Background(), "g1", "c2", "+9779999999"); d.Action != ActionReject {
		t.Fatalf("non-matching prefix must fall through to reject, got %+v", d)
	}
}

func TestRoute_BareWildcardPrefixMatchesEveryCaller(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "catch all", MatchType: MatchPrefix, CallerPattern: "*",
			Action: ActionAnswer, Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)

	for _, caller := range []string{"+9771234567", "+15551234", ""} {
		if d := r.Route(context.Background(), "g1", "c1", caller); d.Action != ActionAnswer || d.RuleID != "r1" {
			t.Fatalf("bare wildcard must match caller %q, got %+v", caller, d)
		}
	}
}

func TestRoute_ExactMatching(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "vip", MatchType: MatchExact, CallerPattern: "+15551234",
			Action: ActionAnswer, Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)

	if d := r.Route(context.Background(), "g1", "c1", "+15551234"); d.Action != ActionAnswer {
		t.Fatalf("exact number must match, got %+v", d)
	}
	if d := r.Route(context.Background(), "g1", "c2", "+155512345"); d.Action != ActionReject {
		t.Fatalf("superstring must not match exact rule, got %+v", d)
	}
}

func TestRoute_ContactOnlyMatching(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "known callers", MatchType: MatchContactOnly,
			Action: ActionAnswer, Priority: 1, IsActive: true},
	}
	contactRepo := contacts.NewMemoryRepo(
		contacts.Contact{ID: "ct-1", OrgID: "org-1", Name: "Asha", PhoneNumber: "+9771234567"},
		contacts.Contact{ID: "ct-2", OrgID: "org-2", Name: "Other Org", PhoneNumber: "+9770000000"},
	)
	r := newTestRouter(&p, rules, contactRepo)

	d := r.Route(context.Background(), "g1", "c1", "+9771234567")
	if d.Action != ActionAnswer {
		t.Fatalf("known contact must match, got %+v", d)
	}
	if d.ContactID != "ct-1" || d.ContactName != "Asha" {
		t.Fatalf("decision must carry the resolved contact, got %+v", d)
	}

	// Same number but belonging to another org's contact book.
	if d := r.Route(context.Background(), "g1", "c2", "+9770000000"); d.Action != ActionReject {
		t.Fatalf("contact from another org must not match, got %+v", d)
	}
}

func TestRoute_RuleOverridesGatewayDefaults(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "custom", MatchType: MatchAll, Action: ActionAnswer,
			SystemInstruction: "rule instruction", VoiceName: "Kore", Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.SystemInstruction != "rule instruction" || d.VoiceName != "Kore" {
		t.Fatalf("matched rule must override gateway defaults, got %+v", d)
	}
}

func TestRoute_ForwardWithoutTargetDegradesToAnswer(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "broken forward", MatchType: MatchAll, Action: ActionForward,
			Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionAnswer {
		t.Fatalf("forward without target must degrade to answer, got %+v", d)
	}
	if d.ForwardTo != "" {
		t.Fatalf("degraded decision must not carry a forward target")
	}
}

func TestRoute_ForwardWithTarget(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "to support", MatchType: MatchAll, Action: ActionForward,
			ForwardTo: "+9771111111", Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)
	d := r.Route(context.Background(), "g1", "c1", "+15551234")
	if d.Action != ActionForward || d.ForwardTo != "+9771111111" {
		t.Fatalf("expected forward with target, got %+v", d)
	}
}

func TestRoute_TimeWindow(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "office hours", MatchType: MatchAll, Action: ActionAnswer,
			TimeStart: "09:00", TimeEnd: "17:00", DaysOfWeek: []int{1, 2, 3, 4, 5},
			Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)

	// Monday 10:00 inside the window.
	r.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	if d := r.Route(context.Background(), "g1", "c1", "+1555"); d.Action != ActionAnswer {
		t.Fatalf("inside window must match, got %+v", d)
	}

	// Monday 20:00 outside the hours.
	r.now = func() time.Time { return time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC) }
	if d := r.Route(context.Background(), "g1", "c2", "+1555"); d.Action != ActionReject {
		t.Fatalf("outside hours must not match, got %+v", d)
	}

	// Sunday 10:00 outside the day list.
	r.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	if d := r.Route(context.Background(), "g1", "c3", "+1555"); d.Action != ActionReject {
		t.Fatalf("outside days must not match, got %+v", d)
	}
}

func TestRoute_OvernightWindowWraps(t *testing.T) {
	p := activePhone(false)
	rules := []InboundRoutingRule{
		{ID: "r1", OrgID: "org-1", Name: "night line", MatchType: MatchAll, Action: ActionAnswer,
			TimeStart: "22:00", TimeEnd: "06:00", Priority: 1, IsActive: true},
	}
	r := newTestRouter(&p, rules, nil)

	r.now = func() time.Time { return time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC) }
	if d := r.Route(context.Background(), "g1", "c1", "+1555"); d.Action != ActionAnswer {
		t.Fatalf("23:30 must be inside 22:00-06:00, got %+v", d)
	}

	r.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	if d := r.Route(context.Background(), "g1", "c2", "+1555"); d.Action != ActionReject {
		t.Fatalf("noon must be outside 22:00-06:00, got %+v", d)
	}
}

func TestLogInteraction_StatusByAction(t *testing.T) {
	repo := interactions.NewMemoryRepo()
	p := activePhone(true)
	r := newTestRouter(&p, nil, nil).WithInteractions(interactions.NewService(repo))

	d := r.Route(context.Background(), "g1", "c1", "+1555")
	r.LogInteraction(context.Background(), d, "g1", "+1555")

	reject := Decision{Action: ActionReject, CallID: "c2", OrgID: "org-1", RejectReason: "no_matching_rule"}
	r.LogInteraction(context.Background(), reject, "g1", "+1555")

	recs := repo.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Status != interactions.StatusInProgress || recs[0].Action != "answer" {
		t.Fatalf("answer must log in_progress, got %+v", recs[0])
	}
	if recs[1].Status != interactions.StatusCompleted || recs[1].RejectReason != "no_matching_rule" {
		t.Fatalf("reject must log completed, got %+v", recs[1])
	}
}
