package dto

import "time"

// ==================== Auth DTOs ====================

// NonceResponse login challenge for a wallet address
type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"` // text the wallet must personal_sign
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest signed login challenge
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"` // 65-byte hex, v in {0,1,27,28}
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Message   string    `json:"message"`
}

// AdminLoginRequest admin password + TOTP login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// ErrorResponse shape shared by every failing endpoint
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
