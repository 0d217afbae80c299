package enums

import "fmt"

// ReturnStatus tracks the lifecycle of a return request.
type ReturnStatus string

const (
	ReturnStatusPending         ReturnStatus = "pending"
	ReturnStatusApproved        ReturnStatus = "approved"
	ReturnStatusRejected        ReturnStatus = "rejected"
	ReturnStatusPickupScheduled ReturnStatus = "pickup_scheduled"
	ReturnStatusPickedUp        ReturnStatus = "picked_up"
	ReturnStatusReceived        ReturnStatus = "received"
	ReturnStatusRefunded        ReturnStatus = "refunded"
	ReturnStatusCancelled       ReturnStatus = "cancelled"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusReceived,
	ReturnStatusRefunded,
	ReturnStatusCancelled,
}

var terminalReturnStatuses = map[ReturnStatus]struct{}{
	ReturnStatusRejected:  {},
	ReturnStatusRefunded:  {},
	ReturnStatusCancelled: {},
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from this status.
func (r ReturnStatus) IsTerminal() bool {
	_, ok := terminalReturnStatuses[r]
	return ok
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
