package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agritrade/agritrade-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	PartyID uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// Actor is the identity the payload will carry once signed.
func (p AccessTokenPayload) Actor() Actor {
	return Actor{UserID: p.UserID, PartyID: p.PartyID, Role: p.Role}
}

// AccessTokenClaims represents the typed JWT issued to clients. PartyID is the
// farmer or purchaser the user acts for; admins carry their own user id.
type AccessTokenClaims struct {
	UserID  uuid.UUID       `json:"user_id"`
	PartyID uuid.UUID       `json:"party_id"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the workflow identity.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, PartyID: c.PartyID, Role: c.Role}
}
