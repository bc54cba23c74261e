package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/auth"
)

// AdminAuthMiddleware admin authentication middleware
type AdminAuthMiddleware struct {
	tokens TokenValidator
	logger *logrus.Logger
}

// NewAdminAuthMiddleware tokens must be the admin-role manager
func NewAdminAuthMiddleware(tokens TokenValidator, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{tokens: tokens, logger: logger}
}

// RequireAdminAuth require admin token
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, a.tokens, a.logger)
		if !ok {
			return
		}

		c.Set(auth.ContextAdminUsername, claims.Subject)
		c.Set(auth.ContextRole, claims.Role)
		c.Next()
	}
}
