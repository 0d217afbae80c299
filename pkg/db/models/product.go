package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the stock counters the order lifecycle reserves against.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	SKU        string    `gorm:"column:sku;uniqueIndex"`
	PricePaise int64     `gorm:"column:price_paise;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	SoldCount  int       `gorm:"column:sold_count;not null;default:0"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
