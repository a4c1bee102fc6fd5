package validators

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agritrade/agritrade-backend/pkg/errors"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Stage  string          `json:"stage" validate:"omitempty,oneof=full deposit balance"`
}

func TestDecodeJSONBodyValidatesDecimal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"0","stage":"full"}`))
	var body amountRequest
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be greater than 0", details["amount"])
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"125.50","stage":"deposit"}`))
	var body amountRequest
	require.NoError(t, DecodeJSONBody(req, &body))
	require.True(t, body.Amount.Equal(decimal.RequireFromString("125.5")))
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	var body amountRequest
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("orderId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	require.Error(t, err)
	_, err = ParseUUIDParam(withParam(""), "orderId")
	require.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?window_minutes=30", nil)
	value, err := ParseQueryInt(req, "window_minutes", 60, 1, 1440)
	require.NoError(t, err)
	require.Equal(t, 30, value)

	req = httptest.NewRequest(http.MethodGet, "/?window_minutes=0", nil)
	_, err = ParseQueryInt(req, "window_minutes", 60, 1, 1440)
	require.Error(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	value, err = ParseQueryInt(req, "window_minutes", 60, 1, 1440)
	require.NoError(t, err)
	require.Equal(t, 60, value)
}

func TestParseQueryMinutes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?window_minutes=15", nil)
	window, err := ParseQueryMinutes(req, "window_minutes", time.Hour, 1440)
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, window)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	window, err = ParseQueryMinutes(req, "window_minutes", 48*time.Hour, 1440)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, window)

	req = httptest.NewRequest(http.MethodGet, "/?window_minutes=1441", nil)
	_, err = ParseQueryMinutes(req, "window_minutes", time.Hour, 1440)
	require.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "dock 3", SanitizeString("  dock 3\t ", 0))
	require.Equal(t, "line one\nline two", SanitizeString("line one\nline\x00 two", 100))
	require.Equal(t, "山东寿光", SanitizeString("山东寿光蔬菜基地", 4))
	require.Equal(t, "abc", SanitizeString("abcdef", 3))
}

func multipartRequest(t *testing.T, fields map[string]string, fileField string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "voucher.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFormFileReadsUpload(t *testing.T) {
	req := multipartRequest(t, map[string]string{"amount": " 10.00 "}, "voucher", []byte("png-bytes"))
	require.NoError(t, ParseMultipart(httptest.NewRecorder(), req, 1<<20))

	file, closeFn, err := FormFile(req, "voucher", true)
	require.NoError(t, err)
	defer closeFn()
	require.Equal(t, "voucher.png", file.Name)
	require.EqualValues(t, len("png-bytes"), file.Size)
	data, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "10.00", FormValue(req, "amount"))
}

func TestFormFileOptionalAndRequired(t *testing.T) {
	req := multipartRequest(t, map[string]string{"amount": "1"}, "", nil)
	require.NoError(t, ParseMultipart(httptest.NewRecorder(), req, 1<<20))

	file, closeFn, err := FormFile(req, "voucher", false)
	require.NoError(t, err)
	require.Nil(t, file)
	closeFn()

	_, _, err = FormFile(req, "signature", true)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestParseMultipartRejectsOversizedBody(t *testing.T) {
	req := multipartRequest(t, nil, "voucher", bytes.Repeat([]byte("x"), 2048))
	err := ParseMultipart(httptest.NewRecorder(), req, 512)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	type reason struct {
		Reason string `json:"reason" validate:"max=5"`
	}

	var empty reason
	require.NoError(t, DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &empty))
	require.Empty(t, empty.Reason)

	var long reason
	err := DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"too long"}`)), &long)
	require.Error(t, err)
}
