package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet tracks a reseller's withdrawable and locked balances. Balances are
// never assigned directly; every mutation goes through the ledger service,
// which writes a matching WalletTransaction in the same database transaction.
type Wallet struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	BalancePaise        int64     `gorm:"column:balance_paise;not null;default:0"`
	PendingBalancePaise int64     `gorm:"column:pending_balance_paise;not null;default:0"`
	TotalEarnedPaise    int64     `gorm:"column:total_earned_paise;not null;default:0"`
	TotalWithdrawnPaise int64     `gorm:"column:total_withdrawn_paise;not null;default:0"`
	IsFrozen            bool      `gorm:"column:is_frozen;not null;default:false"`
	FrozenReason        *string   `gorm:"column:frozen_reason"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
