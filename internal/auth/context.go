package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxGatewayID ctxKey = iota
	ctxOrgID
)

func WithGateway(ctx context.Context, gatewayID, orgID string) context.Context {
	ctx = context.WithValue(ctx, ctxGatewayID, gatewayID)
	ctx = context.WithValue(ctx, ctxOrgID, orgID)
	return ctx
}

func GatewayID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxGatewayID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("gateway_id not in context")
}

func OrgID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxOrgID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("org_id not in context")
}
