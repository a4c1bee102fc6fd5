package enums

import "fmt"

// ContractStatus tracks a purchase contract from drafting to completion.
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "draft"
	ContractStatusSigned     ContractStatus = "signed"
	ContractStatusExecuting  ContractStatus = "executing"
	ContractStatusCompleted  ContractStatus = "completed"
	ContractStatusTerminated ContractStatus = "terminated"
)

var validContractStatuses = []ContractStatus{
	ContractStatusDraft,
	ContractStatusSigned,
	ContractStatusExecuting,
	ContractStatusCompleted,
	ContractStatusTerminated,
}

// String implements fmt.Stringer.
func (c ContractStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ContractStatus.
func (c ContractStatus) IsValid() bool {
	for _, candidate := range validContractStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (c ContractStatus) IsTerminal() bool {
	return c == ContractStatusCompleted || c == ContractStatusTerminated
}

// ParseContractStatus converts raw input into a ContractStatus.
func ParseContractStatus(value string) (ContractStatus, error) {
	for _, candidate := range validContractStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contract status %q", value)
}
