package types

import (
	"database/sql/driver"
	"encoding/json"
)

// BankDetails is the payout destination snapshot frozen onto a withdrawal
// at request time, so later profile edits cannot redirect an in-flight payout.
type BankDetails struct {
	AccountHolderName string `json:"account_holder_name" validate:"required"`
	AccountNumber     string `json:"account_number" validate:"required"`
	IFSCCode          string `json:"ifsc_code" validate:"required"`
	BankName          string `json:"bank_name" validate:"required"`
	AccountType       string `json:"account_type"`
}

// Value serializes the bank details to JSON.
func (b *BankDetails) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// Scan decodes JSONB into the bank details struct.
func (b *BankDetails) Scan(value interface{}) error {
	if value == nil {
		*b = BankDetails{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, b)
}
