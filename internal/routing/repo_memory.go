package routing

import (
	"context"
	"sort"
	"sync"
)

// MemoryPhoneRepo backs tests and local development.
type MemoryPhoneRepo struct {
	mu     sync.RWMutex
	phones map[string]GatewayPhone // keyed by gateway_id
}

func NewMemoryPhoneRepo(phones ...GatewayPhone) *MemoryPhoneRepo {
	r := &MemoryPhoneRepo{phones: make(map[string]GatewayPhone)}
	for _, p := range phones {
		r.phones[p.GatewayID] = p
	}
	return r
}

func (r *MemoryPhoneRepo) Put(p GatewayPhone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phones[p.GatewayID] = p
}

func (r *MemoryPhoneRepo) FindByGatewayID(ctx context.Context, gatewayID string) (GatewayPhone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.phones[gatewayID]
	if !ok {
		return GatewayPhone{}, ErrPhoneNotFound
	}
	return p, nil
}

// MemoryRuleRepo backs tests and local development.
type MemoryRuleRepo struct {
	mu    sync.RWMutex
	rules []InboundRoutingRule
}

func NewMemoryRuleRepo(rules ...InboundRoutingRule) *MemoryRuleRepo {
	return &MemoryRuleRepo{rules: rules}
}

func (r *MemoryRuleRepo) Put(rule InboundRoutingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

func (r *MemoryRuleRepo) ListActiveByOrg(ctx context.Context, orgID string) ([]InboundRoutingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []InboundRoutingRule
	for _, rule := range r.rules {
		if rule.OrgID == orgID && rule.IsActive {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}
