package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Gin context keys set by the auth middleware
const (
	ContextUserAddress   = "user_address"
	ContextAdminUsername = "admin_username"
	ContextRole          = "role"
)

// ErrInvalidCredentials is returned for any admin login mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminCredentials the single configured administrator
type AdminCredentials struct {
	Username     string
	PasswordHash string // bcrypt
	TOTPSecret   string
}

// Configured reports whether admin login can succeed at all
func (a AdminCredentials) Configured() bool {
	return a.Username != "" && a.PasswordHash != "" && a.TOTPSecret != ""
}

// Check verifies username, password and the current TOTP code.
func (a AdminCredentials) Check(username, password, code string) error {
	if !a.Configured() {
		return errors.New("admin login is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) != 1 {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	if !totp.Validate(code, a.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword bcrypt-hashes an admin password for the config file
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// GenerateTOTPSecret creates a new authenticator secret for account
func GenerateTOTPSecret(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key, nil
}
