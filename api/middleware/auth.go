package middleware

import (
	"net/http"
	"strings"

	"github.com/agritrade/agritrade-backend/api/responses"
	pkgAuth "github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/config"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const bearerChallenge = `Bearer realm="agritrade"`

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// Other schemes are treated as missing credentials.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth resolves the farmer, purchaser or admin behind the bearer token and
// tags the request logger with their identity.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deny := func(err error) {
				w.Header().Set("WWW-Authenticate", bearerChallenge)
				responses.WriteError(r.Context(), logg, w, err)
			}

			token, ok := bearerToken(r)
			if !ok {
				deny(pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil {
					deny(typed)
					return
				}
				deny(pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := claims.Actor()
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithParty(ctx, actor.Role.String(), actor.PartyID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
