package contracts

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/agritrade/agritrade-backend/api/middleware"
	"github.com/agritrade/agritrade-backend/api/responses"
	"github.com/agritrade/agritrade-backend/api/validators"
	internalcontracts "github.com/agritrade/agritrade-backend/internal/contracts"
	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/logger"
)

const contractIDParam = "contractId"

// Create drafts a contract from an agreed docking record.
func Create(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := svc.Create(r.Context(), actor, internalcontracts.CreateInput{
			DockingID:        body.DockingID,
			Quantity:         body.Quantity,
			PaymentTerms:     validators.SanitizeString(body.PaymentTerms, 2000),
			DeliveryTime:     body.DeliveryTime,
			DeliveryAddress:  validators.SanitizeString(body.DeliveryAddress, 500),
			QualityStandards: validators.SanitizeString(body.QualityStandards, 2000),
			BreachTerms:      validators.SanitizeString(body.BreachTerms, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toResponse(contract))
	}
}

func List(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
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

func Detail(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
	return withContract(logg, func(ctx context.Context, actor auth.Actor, contractID uuid.UUID, r *http.Request) (*models.Contract, error) {
		return svc.Get(ctx, actor, contractID)
	})
}

// Sign stores the caller's signature file and records it on the contract.
func Sign(svc internalcontracts.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := validators.ParseUUIDParam(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ParseMultipart(w, r, maxUploadBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		signature, closeFile, err := validators.FormFile(r, "signature", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeFile()

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithContractID(ctx, contractID.String())
		}
		contract, err := svc.Sign(ctx, actor, contractID, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(contract))
	}
}

func Withdraw(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
	return withReason(logg, svc.Withdraw)
}

func Reject(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
	return withReason(logg, svc.Reject)
}

func Terminate(svc internalcontracts.Service, logg *logger.Logger) http.HandlerFunc {
	return withReason(logg, svc.Terminate)
}

type reasonAction func(ctx context.Context, actor auth.Actor, contractID uuid.UUID, reason string) (*models.Contract, error)

func withReason(logg *logger.Logger, action reasonAction) http.HandlerFunc {
	return withContract(logg, func(ctx context.Context, actor auth.Actor, contractID uuid.UUID, r *http.Request) (*models.Contract, error) {
		var body reasonRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			return nil, err
		}
		return action(ctx, actor, contractID, validators.SanitizeString(body.Reason, 500))
	})
}

type contractAction func(ctx context.Context, actor auth.Actor, contractID uuid.UUID, r *http.Request) (*models.Contract, error)

func withContract(logg *logger.Logger, action contractAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		contractID, err := validators.ParseUUIDParam(r, contractIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithContractID(ctx, contractID.String())
		}
		contract, err := action(ctx, actor, contractID, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if contract == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contract missing from result"))
			return
		}
		responses.WriteSuccess(w, toResponse(contract))
	}
}
