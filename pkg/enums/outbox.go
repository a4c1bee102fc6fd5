package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateContract    OutboxAggregateType = "contract"
	AggregateOrder       OutboxAggregateType = "order"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateReservation OutboxAggregateType = "reservation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateContract,
	AggregateOrder,
	AggregatePayment,
	AggregateReservation,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a workflow transition published to subscribers.
type OutboxEventType string

const (
	EventContractCreated    OutboxEventType = "contract_created"
	EventContractSigned     OutboxEventType = "contract_signed"
	EventContractTerminated OutboxEventType = "contract_terminated"
	EventContractCompleted  OutboxEventType = "contract_completed"
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderDelivered     OutboxEventType = "order_delivered"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventPaymentRecorded    OutboxEventType = "payment_recorded"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventReservationExpired OutboxEventType = "reservation_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventContractCreated,
	EventContractSigned,
	EventContractTerminated,
	EventContractCompleted,
	EventOrderCreated,
	EventOrderDelivered,
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderCompleted,
	EventPaymentRecorded,
	EventPaymentFailed,
	EventReservationExpired,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
