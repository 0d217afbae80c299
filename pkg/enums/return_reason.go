package enums

import "fmt"

// ReturnReason captures why the customer wants to send items back.
type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonWrongProduct   ReturnReason = "wrong_product"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonQualityIssue   ReturnReason = "quality_issue"
	ReturnReasonOther          ReturnReason = "other"
)

var validReturnReasons = []ReturnReason{
	ReturnReasonDamaged,
	ReturnReasonWrongProduct,
	ReturnReasonNotAsDescribed,
	ReturnReasonQualityIssue,
	ReturnReasonOther,
}

// String implements fmt.Stringer.
func (r ReturnReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnReason.
func (r ReturnReason) IsValid() bool {
	for _, candidate := range validReturnReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnReason converts raw input into a ReturnReason.
func ParseReturnReason(value string) (ReturnReason, error) {
	for _, candidate := range validReturnReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return reason %q", value)
}
