package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/middleware"
)

// PushConnector upgrades a request into a push subscription for user
type PushConnector interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, userAddress string)
}

// WebSocketHandler authenticates websocket clients and hands them to the push service
type WebSocketHandler struct {
	push   PushConnector
	tokens middleware.TokenValidator
	log    *logrus.Entry
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(push PushConnector, tokens middleware.TokenValidator, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		push:   push,
		tokens: tokens,
		log:    logger.WithField("component", "websocket_handler"),
	}
}

// HandleWebSocket GET /ws. Browsers cannot set headers on websocket
// requests, so the token may also arrive as ?token=.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if token == "" {
		errorJSON(c, http.StatusUnauthorized, "MISSING_TOKEN", "Authentication required", "")
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.log.WithError(err).Debug("WebSocket token rejected")
		errorJSON(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", err.Error())
		return
	}

	h.push.HandleWebSocket(c.Writer, c.Request, strings.ToLower(claims.Subject))
}
