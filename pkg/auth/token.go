package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agritrade/agritrade-backend/pkg/config"
)

// Tokens are HS256 only; anything else in the header is rejected.
var signingMethod = jwt.SigningMethodHS256

// clockSkew tolerated on exp/iat between the issuer and this service.
const clockSkew = 30 * time.Second

func checkSigningConfig(cfg config.JWTConfig) error {
	var problems []string
	if cfg.Secret == "" {
		problems = append(problems, "secret")
	}
	if cfg.Issuer == "" {
		problems = append(problems, "issuer")
	}
	if len(problems) > 0 {
		return fmt.Errorf("jwt %s required", strings.Join(problems, " and "))
	}
	return nil
}

// MintAccessToken signs a token for a farmer, purchaser or admin. Counterparty
// tokens must name the party the user acts for.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkSigningConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if err := payload.Actor().Validate(); err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:  payload.UserID,
		PartyID: payload.PartyID,
		Role:    payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks that the
// claims describe a usable actor.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if err := checkSigningConfig(cfg); err != nil {
		return nil, err
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject != "" && claims.Subject != claims.UserID.String() {
		return nil, errors.New("token subject does not match user id")
	}
	if err := claims.Actor().Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}
