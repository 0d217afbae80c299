package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/enums"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

// Withdrawal is a reseller's payout request. The requested amount sits in the
// wallet's pending balance until an admin resolves the request.
type Withdrawal struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WithdrawalNo    string                 `gorm:"column:withdrawal_no;not null;uniqueIndex"`
	UserID          uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	WalletID        uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null;index"`
	AmountPaise     int64                  `gorm:"column:amount_paise;not null"`
	BankDetails     *types.BankDetails     `gorm:"column:bank_details;type:jsonb"`
	Status          enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	UTRNumber       *string                `gorm:"column:utr_number"`
	RejectionReason *string                `gorm:"column:rejection_reason"`
	ProcessedBy     *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	ProcessedAt     *time.Time             `gorm:"column:processed_at"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
