package enums

import "fmt"

// WithdrawalStatus tracks a reseller's withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

var validWithdrawalStatuses = []WithdrawalStatus{
	WithdrawalStatusPending,
	WithdrawalStatusProcessing,
	WithdrawalStatusCompleted,
	WithdrawalStatusRejected,
	WithdrawalStatusFailed,
}

// String implements fmt.Stringer.
func (w WithdrawalStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WithdrawalStatus.
func (w WithdrawalStatus) IsValid() bool {
	for _, candidate := range validWithdrawalStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the withdrawal can no longer change state.
func (w WithdrawalStatus) IsTerminal() bool {
	switch w {
	case WithdrawalStatusCompleted, WithdrawalStatusRejected, WithdrawalStatusFailed:
		return true
	}
	return false
}

// ParseWithdrawalStatus converts raw input into a WithdrawalStatus.
func ParseWithdrawalStatus(value string) (WithdrawalStatus, error) {
	for _, candidate := range validWithdrawalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid withdrawal status %q", value)
}
