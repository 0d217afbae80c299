package enums

import "fmt"

// EarningStatus tracks the maturation of a reseller's markup on one order.
// The life cycle is independent of order status: it only matures after the
// return window closes without an active return.
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusCredited  EarningStatus = "credited"
	EarningStatusCancelled EarningStatus = "cancelled"
)

var validEarningStatuses = []EarningStatus{
	EarningStatusPending,
	EarningStatusCredited,
	EarningStatusCancelled,
}

// String implements fmt.Stringer.
func (e EarningStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EarningStatus.
func (e EarningStatus) IsValid() bool {
	for _, candidate := range validEarningStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEarningStatus converts raw input into an EarningStatus.
func ParseEarningStatus(value string) (EarningStatus, error) {
	for _, candidate := range validEarningStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid earning status %q", value)
}
