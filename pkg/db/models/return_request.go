package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/enums"
)

// ReturnRequest is a customer's request to send part of a delivered order back.
type ReturnRequest struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnNo string    `gorm:"column:return_no;not null;uniqueIndex"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Reason       enums.ReturnReason `gorm:"column:reason;type:text;not null"`
	ReasonDetail string             `gorm:"column:reason_detail"`

	Status enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	ReviewedBy      *uuid.UUID `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt      *time.Time `gorm:"column:reviewed_at"`
	RejectionReason *string    `gorm:"column:rejection_reason"`

	ShipmentID  *string `gorm:"column:shipment_id"`
	AWB         *string `gorm:"column:awb;index"`
	CourierName *string `gorm:"column:courier_name"`

	RefundAmountPaise int64              `gorm:"column:refund_amount_paise;not null;default:0"`
	RefundMethod      enums.RefundMethod `gorm:"column:refund_method;type:text"`
	RefundStatus      enums.RefundStatus `gorm:"column:refund_status;type:text;not null;default:'pending'"`
	RefundReference   *string            `gorm:"column:refund_reference"`
	RefundedAt        *time.Time         `gorm:"column:refunded_at"`

	ApprovedAt        *time.Time `gorm:"column:approved_at"`
	PickupScheduledAt *time.Time `gorm:"column:pickup_scheduled_at"`
	PickedUpAt        *time.Time `gorm:"column:picked_up_at"`
	ReceivedAt        *time.Time `gorm:"column:received_at"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at"`

	Items []ReturnItem `gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ReturnItem is one returned line, pointing back at the order line it refunds.
type ReturnItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnRequestID uuid.UUID `gorm:"column:return_request_id;type:uuid;not null;index"`
	OrderItemID     uuid.UUID `gorm:"column:order_item_id;type:uuid;not null"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
