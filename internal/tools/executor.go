package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/contacts"
	"github.com/krantiutils/ring-ai-sub000/internal/credits"

	"github.com/google/uuid"
)

// Operations the model may invoke mid-call.
const (
	OpLookupAccount   = "lookup_account"
	OpCheckBalance    = "check_balance"
	OpInitiatePayment = "initiate_payment"
	OpTransferToHuman = "transfer_to_human"
)

// opTimeout bounds each backend-touching operation so a slow lookup cannot
// stall the call's relay loop.
const opTimeout = 10 * time.Second

// Executor dispatches named tool invocations to backend operations.
//
// Rules:
// - Each operation validates its own arguments; bad input yields a result
//   map with an "error" key, never an error return.
// - Panics inside an operation are recovered and converted the same way.
// - transfer_to_human touches no backend; the bridge interprets its result.
type Executor struct {
	contacts contacts.Repository
	credits  credits.Service
	log      *slog.Logger
}

func NewExecutor(contactRepo contacts.Repository, creditSvc credits.Service, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{contacts: contactRepo, credits: creditSvc, log: log}
}

// Execute runs one tool call and always produces a result map.
func (e *Executor) Execute(ctx context.Context, call aisession.ToolCall) (result map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("tool panicked", "tool", call.Name, "panic", r)
			result = errResult(fmt.Sprintf("internal error in %s", call.Name))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	switch call.Name {
	case OpLookupAccount:
		return e.lookupAccount(ctx, call.Args)
	case OpCheckBalance:
		return e.checkBalance(ctx, call.Args)
	case OpInitiatePayment:
		return e.initiatePayment(ctx, call.Args)
	case OpTransferToHuman:
		return e.transferToHuman(call.Args)
	default:
		return errResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}
}

func (e *Executor) lookupAccount(ctx context.Context, args map[string]any) map[string]any {
	phone, ok := stringArg(args, "phone_number")
	if !ok {
		return errResult("phone_number is required")
	}
	orgID, ok := stringArg(args, "org_id")
	if !ok {
		return errResult("org_id is required")
	}
	if _, err := uuid.Parse(orgID); err != nil {
		return errResult("org_id must be a UUID")
	}
	if e.contacts == nil {
		return errResult("account lookup is not available")
	}

	c, err := e.contacts.FindByPhone(ctx, orgID, phone)
	if err == contacts.ErrNotFound {
		return map[string]any{"found": false}
	}
	if err != nil {
		e.log.Error("contact lookup failed", "error", err)
		return errResult("account lookup failed")
	}
	return map[string]any{
		"found":        true,
		"contact_id":   c.ID,
		"name":         c.Name,
		"phone_number": c.PhoneNumber,
	}
}

func (e *Executor) checkBalance(ctx context.Context, args map[string]any) map[string]any {
	orgID, ok := stringArg(args, "org_id")
	if !ok {
		return errResult("org_id is required")
	}
	if _, err := uuid.Parse(orgID); err != nil {
		return errResult("org_id must be a UUID")
	}
	if e.credits == nil {
		return errResult("balance lookup is not available")
	}

	b, err := e.credits.GetBalance(ctx, orgID)
	if err == credits.ErrNotFound {
		return errResult("no credit account for this organization")
	}
	if err != nil {
		e.log.Error("balance lookup failed", "error", err)
		return errResult("balance lookup failed")
	}
	return map[string]any{
		"balance_minor": b.BalanceMinor,
		"currency":      b.Currency,
	}
}

func (e *Executor) initiatePayment(ctx context.Context, args map[string]any) map[string]any {
	orgID, ok := stringArg(args, "org_id")
	if !ok {
		return errResult("org_id is required")
	}
	if _, err := uuid.Parse(orgID); err != nil {
		return errResult("org_id must be a UUID")
	}
	amount, ok := numberArg(args, "amount")
	if !ok || amount <= 0 {
		return errResult("amount must be a positive number")
	}
	reason, _ := stringArg(args, "reason")
	if e.credits == nil {
		return errResult("payments are not available")
	}

	p, err := e.credits.InitiatePurchase(ctx, orgID, int64(amount), reason)
	if err != nil {
		e.log.Error("payment initiation failed", "error", err)
		return errResult("payment initiation failed")
	}
	return map[string]any{
		"ledger_id":    p.LedgerID,
		"amount_minor": p.AmountMinor,
		"currency":     p.Currency,
		"status":       "initiated",
	}
}

func (e *Executor) transferToHuman(args map[string]any) map[string]any {
	summary, _ := stringArg(args, "summary")
	return map[string]any{
		"transfer": true,
		"summary":  summary,
		"message":  "transferring the caller to a human agent",
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// numberArg accepts float64 because JSON decoding produces it for all
// numeric values.
func numberArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func errResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// Declarations describes the four operations to the live API.
func Declarations() []aisession.FunctionDeclaration {
	return []aisession.FunctionDeclaration{
		{
			Name:        OpLookupAccount,
			Description: "Look up the caller's account by phone number.",
			Parameters: &aisession.Schema{
				Type: "object",
				Properties: map[string]*aisession.Schema{
					"phone_number": {Type: "string", Description: "Caller phone number in E.164 form."},
					"org_id":       {Type: "string", Format: "uuid", Description: "Organization the caller belongs to."},
				},
				Required: []string{"phone_number", "org_id"},
			},
		},
		{
			Name:        OpCheckBalance,
			Description: "Check the organization's current credit balance.",
			Parameters: &aisession.Schema{
				Type: "object",
				Properties: map[string]*aisession.Schema{
					"org_id": {Type: "string", Format: "uuid", Description: "Organization to check."},
				},
				Required: []string{"org_id"},
			},
		},
		{
			Name:        OpInitiatePayment,
			Description: "Start a credit purchase for the organization.",
			Parameters: &aisession.Schema{
				Type: "object",
				Properties: map[string]*aisession.Schema{
					"org_id": {Type: "string", Format: "uuid", Description: "Organization to credit."},
					"amount": {Type: "number", Description: "Amount in minor currency units."},
					"reason": {Type: "string", Description: "Free-form payment reference."},
				},
				Required: []string{"org_id", "amount"},
			},
		},
		{
			Name:        OpTransferToHuman,
			Description: "Hand the call over to a human agent.",
			Parameters: &aisession.Schema{
				Type: "object",
				Properties: map[string]*aisession.Schema{
					"summary": {Type: "string", Description: "Short summary of the conversation so far."},
				},
			},
		},
	}
}
