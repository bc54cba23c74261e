package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"lending-gateway/internal/models"
)

// ErrNonceInvalid the nonce is unknown, expired, already used or bound to another address
var ErrNonceInvalid = errors.New("nonce invalid or expired")

// AuthNonceRepository stores login challenges
type AuthNonceRepository interface {
	Create(ctx context.Context, nonce *models.AuthNonce) error
	Consume(ctx context.Context, nonce, address string) (*models.AuthNonce, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type authNonceRepository struct {
	db *gorm.DB
}

// NewAuthNonceRepository creates a new AuthNonceRepository instance
func NewAuthNonceRepository(db *gorm.DB) AuthNonceRepository {
	return &authNonceRepository{db: db}
}

func (r *authNonceRepository) Create(ctx context.Context, nonce *models.AuthNonce) error {
	return r.db.WithContext(ctx).Create(nonce).Error
}

// Consume marks the nonce used and returns it. The conditional update makes
// a nonce usable exactly once even under concurrent logins.
func (r *authNonceRepository) Consume(ctx context.Context, nonce, address string) (*models.AuthNonce, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.AuthNonce{}).
		Where("nonce = ? AND address = ? AND used_at IS NULL AND expires_at > ?", nonce, address, now).
		Update("used_at", &now)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNonceInvalid
	}

	var stored models.AuthNonce
	if err := r.db.WithContext(ctx).Where("nonce = ?", nonce).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *authNonceRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.AuthNonce{})
	return result.RowsAffected, result.Error
}
