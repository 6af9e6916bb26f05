package payments

import "github.com/shopspring/decimal"

// AmountTolerance is the maximum absolute difference, in major currency
// units, allowed between an event amount and the matched invoice total before
// the settlement is flagged as a mismatch. Covers currency rounding between
// gateways that report in minor units. Mismatches beyond the tolerance are
// logged and flagged but never block settlement: the policy favors crediting
// the tenant over rejecting a plausible match.
var AmountTolerance = decimal.NewFromInt(1)

var minorUnitFactor = decimal.NewFromInt(100)

// MajorFromMinor converts a gateway amount expressed in minor currency units
// (e.g. kobo, cents) to major units.
func MajorFromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorUnitFactor)
}

// WithinTolerance reports whether paid covers expected within AmountTolerance.
func WithinTolerance(expected, paid decimal.Decimal) bool {
	return expected.Sub(paid).Abs().LessThanOrEqual(AmountTolerance)
}
