package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"churn-model-service/internal/auth"
)

// AdminAuth requires a bearer token for subject signed by signer. A nil
// signer means no admin secret is configured and every request is refused.
func AdminAuth(signer *auth.Signer, subject string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if signer == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin endpoints are disabled: ADMIN_JWT_SECRET is not set"})
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := signer.Verify(token, subject)
		if err != nil {
			log.WithError(err).WithField("request_id", c.GetString(keyRequestID)).Warn("Admin token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("admin_issuer", claims.Issuer)
		c.Next()
	}
}
