package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// Address is the shipping destination snapshot stored on an order.
type Address struct {
	Name    string  `json:"name" validate:"required"`
	Phone   string  `json:"phone" validate:"required"`
	Line1   string  `json:"line1" validate:"required"`
	Line2   string  `json:"line2,omitempty"`
	City    string  `json:"city" validate:"required"`
	State   string  `json:"state" validate:"required"`
	Pincode string  `json:"pincode" validate:"required,len=6"`
	Country string  `json:"country"`
}

// Normalize fills defaults and trims whitespace.
func (a *Address) Normalize() {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "India"
	}
}

// Value serializes the address to JSON.
func (a *Address) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan decodes JSONB into the address struct.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}
