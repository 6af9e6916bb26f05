package enums

import "fmt"

// PaymentProvenance records how a payment entered the ledger.
type PaymentProvenance string

const (
	ProvenanceManual     PaymentProvenance = "manual"
	ProvenanceWebhook    PaymentProvenance = "webhook"
	ProvenanceReconciled PaymentProvenance = "reconciled"
)

var validPaymentProvenances = []PaymentProvenance{
	ProvenanceManual,
	ProvenanceWebhook,
	ProvenanceReconciled,
}

// String implements fmt.Stringer.
func (p PaymentProvenance) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvenance.
func (p PaymentProvenance) IsValid() bool {
	for _, candidate := range validPaymentProvenances {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvenance converts raw input into a PaymentProvenance.
func ParsePaymentProvenance(value string) (PaymentProvenance, error) {
	for _, candidate := range validPaymentProvenances {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provenance %q", value)
}
