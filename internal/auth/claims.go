package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service. Every
// gateway token must name both the device and the organization it belongs
// to; org scoping downstream depends on it.
type Claims struct {
	jwt.RegisteredClaims

	GatewayID string `json:"gateway_id"`
	OrgID     string `json:"org_id"`
}
