package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/meeting-pipeline/internal/auth"
	"github.com/aura-webinar/meeting-pipeline/pkg/response"
)

const (
	// ContextTenantID is the key for the token's tenant in gin context.
	ContextTenantID = "tenant_id"
	// ContextRole is the key for the operator role in gin context.
	ContextRole = "role"
	// ContextSubject is the key for the operator identity in gin context.
	ContextSubject = "subject"
)

// JWT returns a middleware that validates the bearer token and sets its claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextTenantID, claims.TenantID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextSubject, claims.Subject)
		c.Next()
	}
}

// TenantID returns the tenant set by JWT.
func TenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextTenantID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
