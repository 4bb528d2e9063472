package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireGatewayToken verifies a device token and injects its identity into
// the request context. The token arrives either as a bearer header or, for
// websocket clients that cannot set headers, a "token" query parameter.
func RequireGatewayToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if raw := strings.TrimSpace(c.GetHeader(authorizationHeader)); strings.HasPrefix(raw, bearerPrefix) {
			tok = strings.TrimPrefix(raw, bearerPrefix)
		} else {
			tok = strings.TrimSpace(c.Query("token"))
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing gateway token"})
			return
		}

		claims, err := m.Verify(tok, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithGateway(c.Request.Context(), claims.GatewayID, claims.OrgID)
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("gateway_id", claims.GatewayID)
		c.Set("org_id", claims.OrgID)

		c.Next()
	}
}
