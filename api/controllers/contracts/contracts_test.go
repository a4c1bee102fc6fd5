package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agritrade/agritrade-backend/api/middleware"
	internalcontracts "github.com/agritrade/agritrade-backend/internal/contracts"
	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/db/models"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
	"github.com/agritrade/agritrade-backend/pkg/storage"
	"github.com/agritrade/agritrade-backend/pkg/types"
)

type stubService struct {
	internalcontracts.Service

	createInput internalcontracts.CreateInput
	signedBody  string
	reason      string
	err         error
	contract    *models.Contract
}

func (s *stubService) Create(_ context.Context, _ auth.Actor, input internalcontracts.CreateInput) (*models.Contract, error) {
	s.createInput = input
	return s.contract, s.err
}

func (s *stubService) Sign(_ context.Context, _ auth.Actor, _ uuid.UUID, file *storage.File) (*models.Contract, error) {
	data, _ := io.ReadAll(file.Body)
	s.signedBody = string(data)
	return s.contract, s.err
}

func (s *stubService) Withdraw(_ context.Context, _ auth.Actor, _ uuid.UUID, reason string) (*models.Contract, error) {
	s.reason = reason
	return s.contract, s.err
}

func (s *stubService) Get(_ context.Context, _ auth.Actor, _ uuid.UUID) (*models.Contract, error) {
	return s.contract, s.err
}

func sampleContract() *models.Contract {
	return &models.Contract{
		ID:          uuid.New(),
		ContractNo:  "CT202603020001",
		DockingID:   uuid.New(),
		FarmerID:    uuid.New(),
		PurchaserID: uuid.New(),
		ProductID:   uuid.New(),
		ProductInfo: types.ProductSnapshot{Name: "Fuji apples", Unit: "kg"},
		Quantity:    100,
		Status:      enums.ContractStatusDraft,
	}
}

func purchaserRequest(method, target string, body io.Reader, contractID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	rc.URLParams.Add(contractIDParam, contractID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithActor(ctx, auth.Actor{UserID: uuid.New(), PartyID: uuid.New(), Role: enums.ActorRolePurchaser})
	return req.WithContext(ctx)
}

func TestCreateReturnsCreatedContract(t *testing.T) {
	svc := &stubService{contract: sampleContract()}
	dockingID := uuid.New()
	body := `{"docking_id":"` + dockingID.String() + `","quantity":40,"payment_terms":"  net 30  "}`

	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, purchaserRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(body), uuid.Nil))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, dockingID, svc.createInput.DockingID)
	require.Equal(t, 40, svc.createInput.Quantity)
	require.Equal(t, "net 30", svc.createInput.PaymentTerms)

	var envelope struct {
		Data contractResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Equal(t, "CT202603020001", envelope.Data.ContractNo)
	require.Equal(t, enums.ContractStatusDraft, envelope.Data.Status)
}

func TestCreateRejectsMissingDocking(t *testing.T) {
	svc := &stubService{contract: sampleContract()}
	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, purchaserRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(`{"quantity":5}`), uuid.Nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateMapsRuleViolations(t *testing.T) {
	svc := &stubService{err: pkgerrors.Rule(pkgerrors.ReasonDuplicateContract, "docking already has a contract")}
	body := `{"docking_id":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, purchaserRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(body), uuid.Nil))
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestSignForwardsSignatureFile(t *testing.T) {
	contract := sampleContract()
	svc := &stubService{contract: contract}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("signature", "sig.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("signature-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := purchaserRequest(http.MethodPost, "/api/v1/contracts/x/sign", &buf, contract.ID)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	Sign(svc, 1<<20, nil)(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "signature-bytes", svc.signedBody)
}

func TestSignRequiresFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "x"))
	require.NoError(t, mw.Close())

	req := purchaserRequest(http.MethodPost, "/api/v1/contracts/x/sign", &buf, uuid.New())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	Sign(&stubService{}, 1<<20, nil)(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWithdrawAcceptsEmptyBody(t *testing.T) {
	contract := sampleContract()
	contract.Status = enums.ContractStatusTerminated
	svc := &stubService{contract: contract}

	resp := httptest.NewRecorder()
	Withdraw(svc, nil)(resp, purchaserRequest(http.MethodPost, "/withdraw", nil, contract.ID))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, svc.reason)

	resp = httptest.NewRecorder()
	Withdraw(svc, nil)(resp, purchaserRequest(http.MethodPost, "/withdraw", strings.NewReader(`{"reason":" changed plans "}`), contract.ID))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "changed plans", svc.reason)
}

func TestDetailRejectsBadID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/nope", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add(contractIDParam, "nope")
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithActor(ctx, auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin})

	resp := httptest.NewRecorder()
	Detail(&stubService{}, nil)(resp, req.WithContext(ctx))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandlersRequireActor(t *testing.T) {
	resp := httptest.NewRecorder()
	List(&stubService{}, nil)(resp, httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}
