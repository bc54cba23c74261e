package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/auth"
)

// TokenValidator checks a bearer token
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware JWT authentication for wallet users
type AuthMiddleware struct {
	tokens TokenValidator
	logger *logrus.Logger
}

// NewAuthMiddleware create JWT middleware
func NewAuthMiddleware(tokens TokenValidator, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// RequireAuth rejects requests without a valid user token and stores the
// caller's address under auth.ContextUserAddress.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, a.tokens, a.logger)
		if !ok {
			return
		}

		c.Set(auth.ContextUserAddress, strings.ToLower(claims.Subject))
		c.Set(auth.ContextRole, claims.Role)

		a.logger.WithFields(logrus.Fields{
			"path":         c.Request.URL.Path,
			"method":       c.Request.Method,
			"user_address": claims.Subject,
		}).Debug("JWT auth success")

		c.Next()
	}
}

// bearerToken extracts the token, answering the request itself on failure.
func bearerToken(c *gin.Context, logger *logrus.Logger) (string, bool) {
	fields := logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		logger.WithFields(fields).Warn("JWT auth failed - missing Authorization header")
		abort(c, http.StatusUnauthorized, "Authentication required",
			"Missing Authorization header. Please provide a valid JWT token.", "MISSING_AUTH_HEADER")
		return "", false
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		logger.WithFields(fields).Warn("JWT auth failed - invalid Authorization format")
		abort(c, http.StatusUnauthorized, "Invalid authorization format",
			"Authorization header must be in format: Bearer <token>", "INVALID_AUTH_FORMAT")
		return "", false
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == "" {
		logger.WithFields(fields).Warn("JWT auth failed - empty token")
		abort(c, http.StatusUnauthorized, "Empty token", "Token cannot be empty", "EMPTY_TOKEN")
		return "", false
	}
	return tokenString, true
}

func authenticate(c *gin.Context, tokens TokenValidator, logger *logrus.Logger) (*auth.Claims, bool) {
	tokenString, ok := bearerToken(c, logger)
	if !ok {
		return nil, false
	}

	claims, err := tokens.Validate(tokenString)
	if err != nil {
		entry := logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"error":  err.Error(),
		})
		if errors.Is(err, auth.ErrRoleMismatch) {
			entry.Warn("JWT auth failed - insufficient permissions")
			abort(c, http.StatusForbidden, "Insufficient permissions", err.Error(), "INSUFFICIENT_PERMISSIONS")
			return nil, false
		}
		entry.Warn("JWT auth failed - token verification failed")
		abort(c, http.StatusUnauthorized, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
		return nil, false
	}
	return claims, true
}

func abort(c *gin.Context, status int, errMsg, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
}
