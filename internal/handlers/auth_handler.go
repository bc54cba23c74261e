package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/auth"
	"lending-gateway/internal/dto"
	"lending-gateway/internal/models"
	"lending-gateway/internal/repository"
	"lending-gateway/internal/utils"
)

const nonceTTL = 5 * time.Minute

// AuthHandler wallet login: nonce challenge then signed message
type AuthHandler struct {
	nonces repository.AuthNonceRepository
	tokens *auth.JWTManager
	log    *logrus.Entry
}

// NewAuthHandler create auth handler
func NewAuthHandler(nonces repository.AuthNonceRepository, tokens *auth.JWTManager, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		nonces: nonces,
		tokens: tokens,
		log:    logger.WithField("component", "auth_handler"),
	}
}

// GetNonceHandler GET /api/auth/nonce?address=0x...
func (h *AuthHandler) GetNonceHandler(c *gin.Context) {
	address, err := utils.ParseAddress(c.Query("address"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_ADDRESS", "Invalid address", err.Error())
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		h.log.WithError(err).Error("❌ Failed to generate nonce")
		errorJSON(c, http.StatusInternalServerError, "NONCE_FAILED", "Failed to generate nonce", "")
		return
	}

	now := time.Now()
	lower := utils.NormalizeEvmAddress(address.Hex())
	nonce := &models.AuthNonce{
		Nonce:     hex.EncodeToString(buf),
		Address:   lower,
		ExpiresAt: now.Add(nonceTTL),
	}
	nonce.Message = auth.LoginMessage(lower, nonce.Nonce, now.Unix())

	if err := h.nonces.Create(c.Request.Context(), nonce); err != nil {
		h.log.WithError(err).WithField("address", lower).Error("❌ Failed to store nonce")
		errorJSON(c, http.StatusInternalServerError, "NONCE_FAILED", "Failed to store nonce", "")
		return
	}

	c.JSON(http.StatusOK, dto.NonceResponse{
		Nonce:     nonce.Nonce,
		Message:   nonce.Message,
		ExpiresAt: nonce.ExpiresAt,
	})
}

// LoginHandler POST /api/auth/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: "Invalid request: " + err.Error()})
		return
	}

	address, err := utils.ParseAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{Success: false, Message: err.Error()})
		return
	}
	lower := utils.NormalizeEvmAddress(address.Hex())

	stored, err := h.nonces.Consume(c.Request.Context(), req.Nonce, lower)
	if err != nil {
		if errors.Is(err, repository.ErrNonceInvalid) {
			c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: err.Error()})
			return
		}
		h.log.WithError(err).Error("❌ Failed to consume nonce")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "Failed to verify nonce"})
		return
	}

	if err := auth.VerifyPersonalSignature(address, stored.Message, req.Signature); err != nil {
		h.log.WithError(err).WithField("address", lower).Warn("⚠️ Login signature rejected")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: "Signature verification failed"})
		return
	}

	token, expiresAt, err := h.tokens.Issue(lower)
	if err != nil {
		h.log.WithError(err).Error("❌ Failed to issue token")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "Failed to issue token"})
		return
	}

	h.log.WithField("address", lower).Info("✅ User logged in")
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
		Message:   "success",
	})
}
