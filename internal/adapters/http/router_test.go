package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/commerce-core/internal/adapters/docstore"
	"github.com/shoplane/commerce-core/internal/application"
	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

type staticVerifier struct {
	principals map[string]domain.Principal
}

func (v *staticVerifier) Verify(_ context.Context, rawToken string) (domain.Principal, error) {
	p, ok := v.principals[rawToken]
	if !ok {
		return domain.Principal{}, domain.ErrUnauthenticated
	}
	return p, nil
}

type noopOutbox struct{}

func (noopOutbox) Enqueue(context.Context, domain.Envelope) error { return nil }
func (noopOutbox) MarkPublishedInline(context.Context, uuid.UUID, time.Time) error {
	return nil
}
func (noopOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (noopOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (noopOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (noopOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Envelope) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *staticVerifier) {
	t.Helper()
	repos := docstore.NewRepositories(docstore.NewMemoryStore())
	service := application.NewService(application.Dependencies{
		Logger:     slog.Default(),
		Users:      repos.Users,
		Products:   repos.Products,
		Categories: repos.Categories,
		Carts:      repos.Carts,
		Orders:     repos.Orders,
		Inventory:  repos.Inventory,
		Payments:   repos.Payments,
		Reviews:    repos.Reviews,
		Shipments:  repos.Shipments,
		Returns:    repos.Returns,
		Tickets:    repos.Tickets,
		Outbox:     noopOutbox{},
		Publisher:  noopPublisher{},
	})
	expiry := time.Now().Add(time.Hour)
	verifier := &staticVerifier{principals: map[string]domain.Principal{
		"customer-token": {Subject: "sub-1", Email: "c@example.com", Roles: []domain.Role{domain.RoleCustomer}, ExpiresAt: expiry},
		"staff-token":    {Subject: "sub-2", Email: "s@example.com", Roles: []domain.Role{domain.RoleStaff}, ExpiresAt: expiry},
	}}
	server := httptest.NewServer(NewRouter(NewHandler(service, verifier, nil)))
	t.Cleanup(server.Close)
	return server, verifier
}

func doRequest(t *testing.T, method, url, token, body string, extra map[string]string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthEndpointsArePublic(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	resp := doRequest(t, http.MethodGet, server.URL+"/healthz", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("every response must carry a request id")
	}
}

func TestCatalogIsPublicButProfileIsNot(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/products", "", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous catalog browse: status %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/me", "", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous profile read: status %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/me", "forged-token", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token: status %d", resp.StatusCode)
	}
}

func TestStaffRoutesRejectCustomers(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	// Provision the profile first so the denied call is a pure role failure.
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/me", "customer-token", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("provision profile: status %d", resp.StatusCode)
	}
	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/staff/products", "customer-token",
		`{"sku":"sku-1","name":"X","price_cents":100,"active":true}`, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer on staff route: status %d", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope["code"] != "FORBIDDEN" {
		t.Fatalf("unexpected error code %v", envelope["code"])
	}
}

func TestCartConditionalWritesOverHTTP(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	base := server.URL + "/api/v1"

	if resp := doRequest(t, http.MethodGet, base+"/me", "customer-token", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("provision customer: status %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, base+"/me", "staff-token", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("provision staff: status %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodPost, base+"/staff/products", "staff-token",
		`{"sku":"sku-42","name":"Widget","price_cents":1999,"initial_stock":10,"active":true}`, nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product: status %d", resp.StatusCode)
	}

	resp := doRequest(t, http.MethodPost, base+"/cart/items", "customer-token",
		`{"sku":"sku-42","quantity":2}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add cart item: status %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("cart responses must carry the revision in ETag")
	}

	// Conditional update with the observed revision succeeds and advances it.
	resp = doRequest(t, http.MethodPut, base+"/cart/items/sku-42", "customer-token",
		`{"quantity":3}`, map[string]string{"If-Match": etag})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("conditional update: status %d", resp.StatusCode)
	}
	if next := resp.Header.Get("ETag"); next == etag {
		t.Fatalf("revision must advance after a write, still %s", next)
	}

	// Replaying the stale revision is a conflict.
	resp = doRequest(t, http.MethodPut, base+"/cart/items/sku-42", "customer-token",
		`{"quantity":9}`, map[string]string{"If-Match": etag})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stale If-Match: status %d", resp.StatusCode)
	}
	envelope := decodeEnvelope(t, resp)
	if envelope["code"] != "CONFLICT" {
		t.Fatalf("unexpected error code %v", envelope["code"])
	}

	// No If-Match at all is a validation failure, not a conflict.
	resp = doRequest(t, http.MethodPut, base+"/cart/items/sku-42", "customer-token",
		`{"quantity":9}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing If-Match: status %d", resp.StatusCode)
	}
}

func TestUnknownBodyFieldsRejected(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/me", "customer-token", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("provision profile: status %d", resp.StatusCode)
	}
	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/cart/items", "customer-token",
		`{"sku":"sku-42","quantity":1,"color":"red"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", resp.StatusCode)
	}
}

// The inbound contract is snake_case, matching response bodies. Go-cased
// keys are unknown fields, not silent aliases.
func TestRequestBodiesUseSnakeCase(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	if resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/me", "staff-token", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("provision profile: status %d", resp.StatusCode)
	}
	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/staff/products", "staff-token",
		`{"sku":"sku-9","name":"X","priceCents":100,"active":true}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("camelCase body must be rejected, got status %d", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodPost, server.URL+"/api/v1/staff/products", "staff-token",
		`{"sku":"sku-9","name":"X","price_cents":100,"initial_stock":1,"active":true}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("snake_case body must be accepted, got status %d", resp.StatusCode)
	}
}

func TestMapDomainError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrThrottled, http.StatusServiceUnavailable, "STORE_THROTTLED"},
		{&domain.ThrottleError{RetryAfter: time.Second}, http.StatusServiceUnavailable, "STORE_THROTTLED"},
		{context.DeadlineExceeded, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		status, code, _ := mapDomainError(tc.err)
		if status != tc.wantStatus || code != tc.wantCode {
			t.Errorf("mapDomainError(%v) = %d/%s, want %d/%s", tc.err, status, code, tc.wantStatus, tc.wantCode)
		}
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	t.Parallel()

	if _, err := bearerTokenFromHeader(""); err == nil {
		t.Errorf("empty header must fail")
	}
	if _, err := bearerTokenFromHeader("Basic abc"); err == nil {
		t.Errorf("non bearer scheme must fail")
	}
	if _, err := bearerTokenFromHeader("Bearer "); err == nil {
		t.Errorf("empty token must fail")
	}
	token, err := bearerTokenFromHeader("Bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Errorf("got %q, %v", token, err)
	}
}

func TestRevisionFromHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header  string
		want    domain.Revision
		wantErr bool
	}{
		{`"7"`, 7, false},
		{"7", 7, false},
		{"", 0, true},
		{`"not-a-number"`, 0, true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		if tc.header != "" {
			req.Header.Set("If-Match", tc.header)
		}
		got, err := revisionFromHeader(req)
		if tc.wantErr {
			if err == nil {
				t.Errorf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("header %q: got %d, %v", tc.header, got, err)
		}
	}
}
