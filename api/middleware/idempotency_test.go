package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agritrade/agritrade-backend/pkg/auth"
	"github.com/agritrade/agritrade-backend/pkg/enums"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func withActor(req *http.Request) *http.Request {
	actor := auth.Actor{UserID: uuid.New(), PartyID: uuid.New(), Role: enums.ActorRolePurchaser}
	return req.WithContext(WithActor(req.Context(), actor))
}

func TestRouteTTLSelection(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"create contract", http.MethodPost, "/api/v1/contracts", defaultIdempotencyTTL, true},
		{"sign", http.MethodPost, "/api/v1/contracts/" + id + "/sign", defaultIdempotencyTTL, true},
		{"order from contract", http.MethodPost, "/api/v1/contracts/" + id + "/order", criticalIdempotencyTTL, true},
		{"submit payment", http.MethodPost, "/api/v1/orders/" + id + "/payments", criticalIdempotencyTTL, true},
		{"pending payment", http.MethodPost, "/api/v1/orders/" + id + "/payments/pending", criticalIdempotencyTTL, true},
		{"admin confirm", http.MethodPost, "/api/admin/v1/payments/" + id + "/confirm", criticalIdempotencyTTL, true},
		{"list payments", http.MethodGet, "/api/v1/orders/" + id + "/payments", 0, false},
		{"get contract", http.MethodGet, "/api/v1/contracts/" + id, 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(`{"docking_id":"x"}`)))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, 0, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	base := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/contracts", nil))
	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(body)).WithContext(base.Context())
		req.Header.Set("Idempotency-Key", "abc")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		return resp
	}

	first := send(`{"quantity":10}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}

	second := send(`{"quantity":10}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Body.String() != `{"data":{"ok":true}}` {
		t.Fatalf("unexpected replay body %q", second.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if calls != 1 {
		t.Fatalf("handler should run once, ran %d", calls)
	}

	third := send(`{"quantity":11}`)
	if third.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key got %d", third.Code)
	}
	for _, ttl := range store.ttls {
		if ttl != defaultIdempotencyTTL {
			t.Fatalf("expected default ttl, got %v", ttl)
		}
	}
}

func TestIdempotencyMiddlewareSkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, 0, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(`{}`)))
	req.Header.Set("Idempotency-Key", "abc")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	if len(store.data) != 0 {
		t.Fatalf("server errors must not be cached, got %v", store.data)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, 0, nil)
	base := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/contracts/x/order", nil))

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a retry arrives while the first request still holds the claim
		dup := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/x/order", strings.NewReader(`{}`)).WithContext(base.Context())
		dup.Header.Set("Idempotency-Key", "k1")
		inner = httptest.NewRecorder()
		Idempotency(store, 0, nil)(okHandler()).ServeHTTP(inner, dup)
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/x/order", strings.NewReader(`{}`)).WithContext(base.Context())
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first request 201, got %d", resp.Code)
	}
	if inner == nil || inner.Code != http.StatusConflict {
		t.Fatalf("expected concurrent duplicate to get 409, got %v", inner)
	}
	for key, ttl := range store.ttls {
		if ttl != criticalIdempotencyTTL {
			t.Fatalf("expected completed record %s to use critical ttl, got %v", key, ttl)
		}
	}
}

func TestIdempotencyMiddlewareReleasesClaimOnPanic(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, 0, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(`{}`)))
	req.Header.Set("Idempotency-Key", "abc")
	func() {
		defer func() { _ = recover() }()
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}()

	if len(store.data) != 0 {
		t.Fatalf("panicking request must release its claim, got %v", store.data)
	}
}

func TestIdempotencyMiddlewareIgnoresReads(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	resp := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected passthrough 200 got %d", resp.Code)
	}
}

func TestIdempotencyMiddlewareCapsBody(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, 64, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	path := "/api/v1/orders/" + uuid.NewString() + "/payments"
	req := withActor(httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", 65))))
	req.Header.Set("Idempotency-Key", "voucher-1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "too large") {
		t.Fatalf("expected size error in %s", resp.Body.String())
	}
	if handlerCalled {
		t.Fatal("handler should not run for an oversized body")
	}
	if len(store.data) != 0 {
		t.Fatalf("oversized request must not claim a key: %v", store.data)
	}

	req = withActor(httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Repeat("x", 64))))
	req.Header.Set("Idempotency-Key", "voucher-2")
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 at the cap got %d", resp.Code)
	}
}
