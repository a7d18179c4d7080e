package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

type fakeSession struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.cleared++
}

func newTestClient(url string, s Session, retries int) *HTTPClient {
	logger, _ := zap.NewDevelopment()
	return NewClient(url, s, 100, 5*time.Second, 10*time.Millisecond, retries, logger)
}

func TestGetAreas_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-1" {
			t.Errorf("expected Bearer tok-1, got %s", auth)
		}
		if r.URL.Path != "/Variant/Areas/GetAreas/org-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("expected uuid request id, got %q", r.Header.Get("X-Request-ID"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"areas":[{"id":"area-1","name":"Storage Area A","area":2500,"organizationId":"org-1"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &fakeSession{token: "tok-1"}, 0)

	areas, err := client.GetAreas(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(areas) != 1 || areas[0].ID != "area-1" || areas[0].Area != 2500 {
		t.Errorf("unexpected areas: %+v", areas)
	}
}

func TestGetCargo_BareArrayAndMissingKey(t *testing.T) {
	bodies := []string{
		`[{"id":"cargo-1","status":"Placed"}]`,
		`{"data":[{"id":"cargo-1","status":"Placed"}]}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		cargo, err := newTestClient(server.URL, nil, 0).GetCargo(context.Background(), "org-1")
		server.Close()
		if err != nil {
			t.Fatalf("body %s: unexpected error: %v", body, err)
		}
		if len(cargo) != 1 || cargo[0].Status != model.StatusPlaced {
			t.Errorf("body %s: unexpected cargo %+v", body, cargo)
		}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	cargo, err := newTestClient(server.URL, nil, 0).GetCargo(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cargo == nil || len(cargo) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", cargo)
	}
}

func TestLogin_UnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "john@example.com" || body["password"] != "secret" {
			t.Errorf("unexpected credentials %v", body)
		}
		_, _ = w.Write([]byte(`{"data":{"token":"tok-9","user":{"id":"user-1","organizationId":"org-1"}}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, nil, 0).Login(context.Background(), "john@example.com", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token != "tok-9" || resp.User.OrganizationID != "org-1" {
		t.Errorf("unexpected login response %+v", resp)
	}
}

func TestUnauthorized_ClearsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer server.Close()

	sess := &fakeSession{token: "stale"}
	client := newTestClient(server.URL, sess, 3)

	_, err := client.GetCargo(context.Background(), "org-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "token expired" {
		t.Errorf("unexpected api error %+v", apiErr)
	}
	if sess.cleared != 1 {
		t.Errorf("expected session cleared once, got %d", sess.cleared)
	}
}

func TestAPIError_FieldErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"data":{"message":"validation failed","errors":{"name":["required"]}}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil, 0).CreateArea(context.Background(), model.CreateAreaRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "validation failed" || len(apiErr.Errors["name"]) != 1 {
		t.Errorf("unexpected api error %+v", apiErr)
	}
	if !errors.Is(err, ErrBadRequest) {
		t.Error("expected ErrBadRequest")
	}
	if apiErr.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestGet_RetriesOnServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"org-1","name":"Port of Seattle"}}`))
	}))
	defer server.Close()

	org, err := newTestClient(server.URL, nil, 3).GetMyOrganization(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.Name != "Port of Seattle" {
		t.Errorf("unexpected org %+v", org)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestGet_RateLimitedExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil, 2).GetAreas(context.Background(), "org-1")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	// Should have attempted 3 times (initial + 2 retries)
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMutations_AreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	status := model.StatusPlaced
	_, err := newTestClient(server.URL, nil, 3).UpdateCargo(context.Background(), "cargo-1", model.UpdateCargoRequest{Status: &status})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", attempts.Load())
	}
}

func TestUpdateCargo_SendsPartialBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/Variant/Cargo/UpdateCargo/cargo-2" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"status":"Placed"}` {
			t.Errorf("unexpected body %s", body)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"cargo-2","status":"Placed"}}`))
	}))
	defer server.Close()

	status := model.StatusPlaced
	cargo, err := newTestClient(server.URL, nil, 0).UpdateCargo(context.Background(), "cargo-2", model.UpdateCargoRequest{Status: &status})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cargo.Status != model.StatusPlaced {
		t.Errorf("unexpected cargo %+v", cargo)
	}
}

func TestUpdateCargo_RejectsUnknownStatus(t *testing.T) {
	status := model.CargoStatus("Lost")
	_, err := newTestClient("http://127.0.0.1:1", nil, 0).UpdateCargo(context.Background(), "cargo-1", model.UpdateCargoRequest{Status: &status})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := newTestClient(server.URL, nil, 0).DeleteArea(context.Background(), "area-404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL, nil, 3).GetAreas(ctx, "org-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLogin_BadCredentialsKeepSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid email or password"}`))
	}))
	defer server.Close()

	sess := &fakeSession{token: "still-valid"}
	client := newTestClient(server.URL, sess, 3)

	_, err := client.Login(context.Background(), "ops@cargoviz.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if sess.cleared != 0 {
		t.Errorf("expected session kept, cleared %d times", sess.cleared)
	}
	if sess.Token() != "still-valid" {
		t.Errorf("expected token kept, got %q", sess.Token())
	}
}
