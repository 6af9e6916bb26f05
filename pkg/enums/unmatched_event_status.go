package enums

import "fmt"

// UnmatchedEventStatus tracks parked gateway events awaiting reconciliation.
type UnmatchedEventStatus string

const (
	UnmatchedEventParked     UnmatchedEventStatus = "parked"
	UnmatchedEventReconciled UnmatchedEventStatus = "reconciled"
)

var validUnmatchedEventStatuses = []UnmatchedEventStatus{
	UnmatchedEventParked,
	UnmatchedEventReconciled,
}

// String implements fmt.Stringer.
func (s UnmatchedEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known UnmatchedEventStatus.
func (s UnmatchedEventStatus) IsValid() bool {
	for _, candidate := range validUnmatchedEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUnmatchedEventStatus converts raw input into an UnmatchedEventStatus.
func ParseUnmatchedEventStatus(value string) (UnmatchedEventStatus, error) {
	for _, candidate := range validUnmatchedEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid unmatched event status %q", value)
}
