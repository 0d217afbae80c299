package models

import (
	"time"

	"github.com/google/uuid"
)

// ShippingCredential caches a shipment-provider auth token with its expiry so
// restarts do not force a fresh login against the provider.
type ShippingCredential struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider  string    `gorm:"column:provider;not null;uniqueIndex"`
	Token     string    `gorm:"column:token;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
