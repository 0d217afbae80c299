package orders

import (
	"fmt"

	"github.com/resellkart/resellkart-backend/pkg/enums"
	pkgerrors "github.com/resellkart/resellkart-backend/pkg/errors"
)

// transitions is the only authority on which order status changes are legal.
// Terminal states carry no entries.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusFailed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusPacked, enums.OrderStatusCancelled},
	enums.OrderStatusPacked:     {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusDeliveryFailed,
	},
	enums.OrderStatusOutForDelivery: {enums.OrderStatusDelivered, enums.OrderStatusDeliveryFailed},
	enums.OrderStatusDeliveryFailed: {enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusDelivered:      {enums.OrderStatusReturnInitiated, enums.OrderStatusCompleted},
	enums.OrderStatusReturnInitiated: {
		enums.OrderStatusReturnApproved,
		enums.OrderStatusReturnRejected,
		enums.OrderStatusReturnCancelled,
	},
	enums.OrderStatusReturnApproved:  {enums.OrderStatusReturnPickedUp, enums.OrderStatusReturnCancelled},
	enums.OrderStatusReturnPickedUp:  {enums.OrderStatusReturnReceived, enums.OrderStatusReturned},
	enums.OrderStatusReturnReceived:  {enums.OrderStatusRefunded, enums.OrderStatusReturned},
	enums.OrderStatusReturnCancelled: {enums.OrderStatusDelivered},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to enums.OrderStatus) error {
	if !from.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid current status %q", from))
	}
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid target status %q", to))
	}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition from terminal status %q", from))
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("invalid transition %s -> %s", from, to))
}

// AllowedTransitions returns the legal next statuses for the given status.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	next := transitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// cancellableStatuses are the only states a user/admin cancellation may start
// from. Later states must go through the return flow.
var cancellableStatuses = map[enums.OrderStatus]struct{}{
	enums.OrderStatusPending:    {},
	enums.OrderStatusConfirmed:  {},
	enums.OrderStatusProcessing: {},
}

// IsCancellable reports whether a cancellation may be requested from the status.
func IsCancellable(status enums.OrderStatus) bool {
	_, ok := cancellableStatuses[status]
	return ok
}
