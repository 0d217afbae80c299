package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/enums"
)

// WalletTransaction is one append-only ledger entry. BalanceAfterPaise is the
// wallet's available balance immediately after this entry was applied.
type WalletTransaction struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID          uuid.UUID                  `gorm:"column:wallet_id;type:uuid;not null;index"`
	Direction         enums.TransactionDirection `gorm:"column:direction;type:text;not null"`
	Source            enums.TransactionSource    `gorm:"column:source;type:text;not null"`
	AmountPaise       int64                      `gorm:"column:amount_paise;not null"`
	BalanceAfterPaise int64                      `gorm:"column:balance_after_paise;not null"`
	ReferenceID       *uuid.UUID                 `gorm:"column:reference_id;type:uuid;index"`
	ReferenceType     *string                    `gorm:"column:reference_type"`
	Description       string                     `gorm:"column:description"`
	Status            enums.TransactionStatus    `gorm:"column:status;type:text;not null;default:'completed'"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
