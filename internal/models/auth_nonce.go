package models

import (
	"time"
)

// AuthNonce single-use login challenge issued to an EVM address
type AuthNonce struct {
	Nonce     string     `json:"nonce" gorm:"primaryKey;size:32"`
	Address   string     `json:"address" gorm:"not null;size:42;index"`
	Message   string     `json:"message" gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (AuthNonce) TableName() string {
	return "auth_nonces"
}
