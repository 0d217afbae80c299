package enums

import "fmt"

// TransactionDirection distinguishes money entering and leaving a wallet.
type TransactionDirection string

const (
	TransactionDirectionCredit TransactionDirection = "credit"
	TransactionDirectionDebit  TransactionDirection = "debit"
)

var validTransactionDirections = []TransactionDirection{
	TransactionDirectionCredit,
	TransactionDirectionDebit,
}

// String implements fmt.Stringer.
func (t TransactionDirection) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionDirection.
func (t TransactionDirection) IsValid() bool {
	for _, candidate := range validTransactionDirections {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionDirection converts raw input into a TransactionDirection.
func ParseTransactionDirection(value string) (TransactionDirection, error) {
	for _, candidate := range validTransactionDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction direction %q", value)
}

// TransactionSource names the business event behind a ledger entry.
type TransactionSource string

const (
	TransactionSourceResellEarning   TransactionSource = "resell_earning"
	TransactionSourceWithdrawal      TransactionSource = "withdrawal"
	TransactionSourceRefund          TransactionSource = "refund"
	TransactionSourceAdminAdjustment TransactionSource = "admin_adjustment"
	TransactionSourceReversal        TransactionSource = "reversal"
)

var validTransactionSources = []TransactionSource{
	TransactionSourceResellEarning,
	TransactionSourceWithdrawal,
	TransactionSourceRefund,
	TransactionSourceAdminAdjustment,
	TransactionSourceReversal,
}

// String implements fmt.Stringer.
func (t TransactionSource) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionSource.
func (t TransactionSource) IsValid() bool {
	for _, candidate := range validTransactionSources {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionSource converts raw input into a TransactionSource.
func ParseTransactionSource(value string) (TransactionSource, error) {
	for _, candidate := range validTransactionSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction source %q", value)
}

// TransactionStatus tracks whether a ledger entry has settled.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
