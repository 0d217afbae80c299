package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is one priced line on an order. Prices are frozen at checkout;
// FinalPricePaise = BasePricePaise + MarkupPaise.
type OrderItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName     string    `gorm:"column:product_name;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	BasePricePaise  int64     `gorm:"column:base_price_paise;not null"`
	MarkupPaise     int64     `gorm:"column:markup_paise;not null;default:0"`
	FinalPricePaise int64     `gorm:"column:final_price_paise;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
