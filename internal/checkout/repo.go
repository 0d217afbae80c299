package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/resellkart/resellkart-backend/pkg/db/models"
)

// Repository is the cart persistence surface used during checkout.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error

	// ClearStaleCarts empties carts untouched since the cutoff and reports
	// how many items were removed.
	ClearStaleCarts(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) ClearStaleCarts(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id IN (?)", r.db.
			Model(&models.Cart{}).
			Select("id").
			Where("updated_at < ?", cutoff)).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
