package auth

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	UserID  uuid.UUID
	PartyID uuid.UUID
	Role    enums.ActorRole
}

// Validate rejects actors without an identity or with an unknown role.
func (a Actor) Validate() error {
	if a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, fmt.Sprintf("unknown role %q", a.Role))
	}
	if a.Role.IsCounterparty() && a.PartyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "party identity missing")
	}
	return nil
}

// IsCounterpart reports whether the actor is the farmer or purchaser recorded
// on a contract or order. Admins are never counterparts.
func (a Actor) IsCounterpart(farmerID, purchaserID uuid.UUID) bool {
	switch a.Role {
	case enums.ActorRoleFarmer:
		return a.PartyID == farmerID
	case enums.ActorRolePurchaser:
		return a.PartyID == purchaserID
	case enums.ActorRoleAdmin:
		return false
	default:
		return false
	}
}

// CanView reports whether the actor may read a record owned by the two parties.
func (a Actor) CanView(farmerID, purchaserID uuid.UUID) bool {
	if a.Role == enums.ActorRoleAdmin {
		return true
	}
	return a.IsCounterpart(farmerID, purchaserID)
}

// RequireCounterpart returns the unauthorized-actor rule error unless the
// actor is the recorded party for the given role.
func (a Actor) RequireCounterpart(role enums.ActorRole, farmerID, purchaserID uuid.UUID) error {
	if a.Role != role || !a.IsCounterpart(farmerID, purchaserID) {
		return pkgerrors.Rule(pkgerrors.ReasonUnauthorizedActor, fmt.Sprintf("caller is not the %s on record", role))
	}
	return nil
}

// Ref converts the actor into the outbox envelope reference.
func (a Actor) Ref() *outbox.ActorRef {
	ref := &outbox.ActorRef{UserID: a.UserID, Role: a.Role.String()}
	if a.PartyID != uuid.Nil {
		party := a.PartyID
		ref.PartyID = &party
	}
	return ref
}
