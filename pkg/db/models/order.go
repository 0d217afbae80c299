package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/resellkart/resellkart-backend/pkg/enums"
	"github.com/resellkart/resellkart-backend/pkg/types"
)

// Order is the customer order snapshot produced from a checkout.
// Status is only ever changed through the orders service transition path.
type Order struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNo    string     `gorm:"column:order_no;not null;uniqueIndex"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	ResellerID *uuid.UUID `gorm:"column:reseller_id;type:uuid;index"`

	ShippingAddress *types.Address `gorm:"column:shipping_address;type:jsonb"`

	SubtotalPaise int64 `gorm:"column:subtotal_paise;not null"`
	ShippingPaise int64 `gorm:"column:shipping_paise;not null;default:0"`
	TaxPaise      int64 `gorm:"column:tax_paise;not null;default:0"`
	TotalPaise    int64 `gorm:"column:total_paise;not null"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentError  *string             `gorm:"column:payment_error"`

	GatewayOrderID   *string `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`
	GatewaySignature *string `gorm:"column:gateway_signature"`

	OrderStatus   enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	StatusHistory types.StatusHistory `gorm:"column:status_history;type:jsonb"`

	CancellationReason *string    `gorm:"column:cancellation_reason"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	ConfirmedAt  *time.Time `gorm:"column:confirmed_at"`
	ProcessingAt *time.Time `gorm:"column:processing_at"`
	PackedAt     *time.Time `gorm:"column:packed_at"`
	ShippedAt    *time.Time `gorm:"column:shipped_at"`
	DeliveredAt  *time.Time `gorm:"column:delivered_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	RefundedAt   *time.Time `gorm:"column:refunded_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`

	ShipmentOrderID   *string              `gorm:"column:shipment_order_id"`
	ShipmentID        *string              `gorm:"column:shipment_id"`
	AWB               *string              `gorm:"column:awb;index"`
	CourierName       *string              `gorm:"column:courier_name"`
	PickupScheduledAt *time.Time           `gorm:"column:pickup_scheduled_at"`
	LabelURL          *string              `gorm:"column:label_url"`
	TrackingEvents    types.TrackingEvents `gorm:"column:tracking_events;type:jsonb"`

	ResellerEarningPaise  int64               `gorm:"column:reseller_earning_paise;not null;default:0"`
	ResellerEarningStatus enums.EarningStatus `gorm:"column:reseller_earning_status;type:text;not null;default:'pending'"`

	ReturnWindowDays    int        `gorm:"column:return_window_days;not null;default:7"`
	ReturnWindowEndDate *time.Time `gorm:"column:return_window_end_date"`

	// StockRestored guards the exactly-once stock restore on cancel/refund.
	StockRestored bool `gorm:"column:stock_restored;not null;default:false"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasShipment reports whether a shipment was already created with the provider.
func (o *Order) HasShipment() bool {
	return o.ShipmentID != nil && *o.ShipmentID != ""
}
