package enums

import "fmt"

// NotificationType names the event a notification row was emitted for.
type NotificationType string

const (
	NotificationTypeOrderPlaced         NotificationType = "order_placed"
	NotificationTypePaymentSuccess      NotificationType = "payment_success"
	NotificationTypeOrderConfirmed      NotificationType = "order_confirmed"
	NotificationTypeOrderShipped        NotificationType = "order_shipped"
	NotificationTypeOrderDelivered      NotificationType = "order_delivered"
	NotificationTypeOrderCancelled      NotificationType = "order_cancelled"
	NotificationTypeReturnInitiated     NotificationType = "return_initiated"
	NotificationTypeReturnApproved      NotificationType = "return_approved"
	NotificationTypeReturnRejected      NotificationType = "return_rejected"
	NotificationTypeRefundProcessed     NotificationType = "refund_processed"
	NotificationTypeWalletCredited      NotificationType = "wallet_credited"
	NotificationTypeWithdrawalCompleted NotificationType = "withdrawal_completed"
	NotificationTypeWithdrawalRejected  NotificationType = "withdrawal_rejected"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypePaymentSuccess,
	NotificationTypeOrderConfirmed,
	NotificationTypeOrderShipped,
	NotificationTypeOrderDelivered,
	NotificationTypeOrderCancelled,
	NotificationTypeReturnInitiated,
	NotificationTypeReturnApproved,
	NotificationTypeReturnRejected,
	NotificationTypeRefundProcessed,
	NotificationTypeWalletCredited,
	NotificationTypeWithdrawalCompleted,
	NotificationTypeWithdrawalRejected,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
