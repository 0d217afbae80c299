package shiprocket

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
)

// GormTokenStore persists provider tokens in the shipping_credentials table.
type GormTokenStore struct {
	db *gorm.DB
}

// NewGormTokenStore wires the store to a database handle.
func NewGormTokenStore(db *gorm.DB) (*GormTokenStore, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &GormTokenStore{db: db}, nil
}

// Load returns the persisted token and expiry for the provider, if any.
func (s *GormTokenStore) Load(ctx context.Context, provider string) (string, time.Time, error) {
	var cred models.ShippingCredential
	err := s.db.WithContext(ctx).
		Where("provider = ?", provider).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, err
	}
	return cred.Token, cred.ExpiresAt, nil
}

// Save upserts the token row for the provider.
func (s *GormTokenStore) Save(ctx context.Context, provider, token string, expiresAt time.Time) error {
	cred := models.ShippingCredential{
		Provider:  provider,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
		}).
		Create(&cred).Error
}
