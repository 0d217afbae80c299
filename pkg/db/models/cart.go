package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart holds the items a customer intends to check out. A reseller id is
// present when the cart was built from a reseller's shared listing.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	ResellerID *uuid.UUID `gorm:"column:reseller_id;type:uuid"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem is one product line in a cart. MarkupPaise is the reseller's
// margin on top of the catalog price.
type CartItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID      uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	MarkupPaise int64     `gorm:"column:markup_paise;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
