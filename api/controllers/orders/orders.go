package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/agritrade/agritrade-backend/api/middleware"
	"github.com/agritrade/agritrade-backend/api/responses"
	"github.com/agritrade/agritrade-backend/api/validators"
	internalorders "github.com/agritrade/agritrade-backend/internal/orders"
	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const orderIDParam = "orderId"

// List returns the caller's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForActor(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponses(list))
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(ctx context.Context, actor auth.Actor, orderID uuid.UUID, _ *http.Request) (*models.Order, error) {
		return svc.Get(ctx, actor, orderID)
	})
}

// CreateFromContract opens the order of a signed contract and reserves its stock.
func CreateFromContract(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := validators.ParseUUIDParam(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithContractID(ctx, contractID.String())
		}
		order, err := svc.CreateFromContract(ctx, actor, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ToResponse(order))
	}
}

// Inspect records the purchaser's acceptance of the delivered quantity.
func Inspect(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(ctx context.Context, actor auth.Actor, orderID uuid.UUID, r *http.Request) (*models.Order, error) {
		var body inspectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Inspect(ctx, actor, orderID, internalorders.InspectInput{
			ActualQuantity: body.ActualQuantity,
			Notes:          validators.SanitizeString(body.Notes, 2000),
		})
	})
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(ctx context.Context, actor auth.Actor, orderID uuid.UUID, r *http.Request) (*models.Order, error) {
		var body cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Cancel(ctx, actor, orderID, validators.SanitizeString(body.Reason, 500))
	})
}

// Complete closes a paid order. Purchasers confirm receipt; admins may close
// on their behalf.
func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(logg, func(ctx context.Context, actor auth.Actor, orderID uuid.UUID, _ *http.Request) (*models.Order, error) {
		return svc.Complete(ctx, actor, orderID)
	})
}

type orderAction func(ctx context.Context, actor auth.Actor, orderID uuid.UUID, r *http.Request) (*models.Order, error)

func withOrder(logg *logger.Logger, action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, orderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := action(ctx, actor, orderID, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ToResponse(order))
	}
}
