package enums

import "fmt"

// PaymentMethod describes how the purchaser settled an installment.
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodOffline      PaymentMethod = "offline"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodBankTransfer,
	PaymentMethodOnline,
	PaymentMethodOffline,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentStage identifies which installment a payment covers.
type PaymentStage string

const (
	PaymentStageFull    PaymentStage = "full"
	PaymentStageDeposit PaymentStage = "deposit"
	PaymentStageBalance PaymentStage = "balance"
)

var validPaymentStages = []PaymentStage{
	PaymentStageFull,
	PaymentStageDeposit,
	PaymentStageBalance,
}

func (p PaymentStage) String() string {
	return string(p)
}

func (p PaymentStage) IsValid() bool {
	for _, candidate := range validPaymentStages {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStage converts raw input into a PaymentStage.
func ParsePaymentStage(value string) (PaymentStage, error) {
	for _, candidate := range validPaymentStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment stage %q", value)
}
