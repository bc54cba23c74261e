package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/dto"
	"lending-gateway/internal/models"
	"lending-gateway/internal/repository"
)

// AdminHandler admin login and journal inspection
type AdminHandler struct {
	creds  auth.AdminCredentials
	tokens *auth.JWTManager
	ops    LendingOperations
	log    *logrus.Entry
}

// NewAdminHandler tokens must be the admin-role manager
func NewAdminHandler(creds auth.AdminCredentials, tokens *auth.JWTManager, ops LendingOperations, logger *logrus.Logger) *AdminHandler {
	if !creds.Configured() {
		logger.Warn("⚠️ Admin credentials are not fully configured, admin login is disabled")
	}
	return &AdminHandler{
		creds:  creds,
		tokens: tokens,
		ops:    ops,
		log:    logger.WithField("component", "admin_handler"),
	}
}

// AdminLoginHandler POST /api/admin/login
func (h *AdminHandler) AdminLoginHandler(c *gin.Context) {
	if !h.creds.Configured() {
		c.JSON(http.StatusServiceUnavailable, dto.AuthResponse{Success: false, Message: "Admin login is not configured"})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: "Invalid request: " + err.Error()})
		return
	}

	if err := h.creds.Check(req.Username, req.Password, req.TOTPCode); err != nil {
		h.log.WithField("client_ip", c.ClientIP()).Warn("⚠️ Admin login rejected")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: auth.ErrInvalidCredentials.Error()})
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Username)
	if err != nil {
		h.log.WithError(err).Error("❌ Failed to issue admin token")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "Failed to issue token"})
		return
	}

	h.log.WithField("username", req.Username).Info("✅ Admin logged in")
	c.JSON(http.StatusOK, dto.AuthResponse{Success: true, Token: token, ExpiresAt: expiresAt, Message: "success"})
}

// ListOperationsHandler GET /api/admin/operations?requester=&operation=&status=
func (h *AdminHandler) ListOperationsHandler(c *gin.Context) {
	filter := repository.OperationFilter{
		Requester: c.Query("requester"),
		Operation: c.Query("operation"),
		Status:    models.LendingOperationStatus(c.Query("status")),
	}
	listOperations(c, h.ops, filter, h.log)
}
