package orders

import (
	"github.com/google/uuid"
)

// ListLimit caps role-filtered listings.
const ListLimit = 100

// ListFilter narrows order listings to one party. A zero filter lists everything.
type ListFilter struct {
	FarmerID    *uuid.UUID
	PurchaserID *uuid.UUID
	Limit       int
}

// InspectInput carries the purchaser's acceptance of a delivery.
type InspectInput struct {
	ActualQuantity int
	Notes          string
}
