package middleware

import (
	"net/http"
	"strings"

	"github.com/annel0/arena-combat/internal/auth"
	"github.com/gin-gonic/gin"
)

// ClaimsKey ключ gin.Context с *auth.Claims
const ClaimsKey = "claims"

// RequireToken проверяет Bearer-токен. Если у выпускающего нет API-ключей, пропускает всё.
// operatorOnly отклоняет токены без права оператора.
func RequireToken(issuer *auth.TokenIssuer, operatorOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if issuer == nil || !issuer.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := issuer.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if operatorOnly && !claims.Operator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator role required"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
