package enums

import "fmt"

// DockingStatus tracks a negotiation between a purchaser demand and a farmer product.
type DockingStatus string

const (
	DockingStatusPending     DockingStatus = "pending"
	DockingStatusNegotiating DockingStatus = "negotiating"
	DockingStatusAgreed      DockingStatus = "agreed"
	DockingStatusRejected    DockingStatus = "rejected"
)

var validDockingStatuses = []DockingStatus{
	DockingStatusPending,
	DockingStatusNegotiating,
	DockingStatusAgreed,
	DockingStatusRejected,
}

func (d DockingStatus) String() string {
	return string(d)
}

func (d DockingStatus) IsValid() bool {
	for _, candidate := range validDockingStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDockingStatus converts raw input into a DockingStatus.
func ParseDockingStatus(value string) (DockingStatus, error) {
	for _, candidate := range validDockingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid docking status %q", value)
}
