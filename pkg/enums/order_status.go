package enums

import "fmt"

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusPacked          OrderStatus = "packed"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusOutForDelivery  OrderStatus = "out_for_delivery"
	OrderStatusDeliveryFailed  OrderStatus = "delivery_failed"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusReturnInitiated OrderStatus = "return_initiated"
	OrderStatusReturnApproved  OrderStatus = "return_approved"
	OrderStatusReturnPickedUp  OrderStatus = "return_picked_up"
	OrderStatusReturnReceived  OrderStatus = "return_received"
	OrderStatusReturnRejected  OrderStatus = "return_rejected"
	OrderStatusReturnCancelled OrderStatus = "return_cancelled"
	OrderStatusReturned        OrderStatus = "returned"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDeliveryFailed,
	OrderStatusDelivered,
	OrderStatusReturnInitiated,
	OrderStatusReturnApproved,
	OrderStatusReturnPickedUp,
	OrderStatusReturnReceived,
	OrderStatusReturnRejected,
	OrderStatusReturnCancelled,
	OrderStatusReturned,
	OrderStatusRefunded,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusFailed,
}

var terminalOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusCompleted:      {},
	OrderStatusRefunded:       {},
	OrderStatusReturned:       {},
	OrderStatusReturnRejected: {},
	OrderStatusCancelled:      {},
	OrderStatusFailed:         {},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from this status.
func (o OrderStatus) IsTerminal() bool {
	_, ok := terminalOrderStatuses[o]
	return ok
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
