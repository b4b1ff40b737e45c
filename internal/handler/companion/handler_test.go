package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/companion-academy/backend/internal/handler/respond"
	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/middleware"
	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
)

// tokenProvider maps bearer tokens straight to callers.
type tokenProvider map[string]caller.Caller

func (p tokenProvider) Authenticate(_ context.Context, token string) (caller.Caller, error) {
	if c, ok := p[token]; ok {
		return c, nil
	}
	return caller.Caller{}, identity.ErrInvalidToken
}

var callers = tokenProvider{
	"free":  {UserID: "free-user"},
	"three": {UserID: "three-user", Features: []string{quota.FeatureThreeLimit}},
	"pro":   {UserID: "pro-user", Plan: quota.PlanPro},
}

type brokenCounter struct {
	*companion.MemoryStore
}

func (brokenCounter) CountByAuthor(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func setupRouter(store companion.Store) *chi.Mux {
	handler := New(
		catalog.NewEngine(store),
		companionService.NewWriter(store, nil),
		quota.NewEnforcer(store, quota.DefaultTiers(), nil),
		nil,
	)

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(callers, nil))
	handler.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeList(t *testing.T, resp *httptest.ResponseRecorder) []companion.Companion {
	t.Helper()
	var items []companion.Companion
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return items
}

func newFields() []byte {
	payload, _ := json.Marshal(companion.Fields{
		Name:     "Geo",
		Subject:  "geography",
		Topic:    "Plate tectonics",
		Voice:    "female",
		Style:    "casual",
		Duration: 20,
	})
	return payload
}

func TestListCompanionsDefaults(t *testing.T) {
	r := setupRouter(companion.NewSeededMemoryStore("system"))

	resp := do(r, http.MethodGet, "/companions", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if items := decodeList(t, resp); len(items) != len(companion.Seed()) {
		t.Fatalf("expected %d companions, got %d", len(companion.Seed()), len(items))
	}
}

func TestListCompanionsFiltersAndPages(t *testing.T) {
	r := setupRouter(companion.NewSeededMemoryStore("system"))

	resp := do(r, http.MethodGet, "/companions?subject=science&topic=brain", "", nil)
	items := decodeList(t, resp)
	if len(items) != 1 || items[0].Subject != "science" {
		t.Fatalf("unexpected filter result %+v", items)
	}

	resp = do(r, http.MethodGet, "/companions?limit=4&page=2", "", nil)
	if items := decodeList(t, resp); len(items) != 2 {
		t.Fatalf("expected remaining 2 companions on page 2, got %d", len(items))
	}
}

func TestListCompanionsRejectsBadPaging(t *testing.T) {
	r := setupRouter(companion.NewSeededMemoryStore("system"))

	for _, query := range []string{"?limit=abc", "?page=0", "?limit=-1", "?limit=101", "?limit=4611686018427387904&page=3"} {
		resp := do(r, http.MethodGet, "/companions"+query, "", nil)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, resp.Code)
		}
	}
}

func TestGetCompanion(t *testing.T) {
	store := companion.NewSeededMemoryStore("system")
	r := setupRouter(store)
	all, _ := store.ListCompanions(context.Background(), companion.ListQuery{Limit: -1})

	resp := do(r, http.MethodGet, "/companions/"+all[0].ID, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = do(r, http.MethodGet, "/companions/unknown", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCreateCompanionRequiresAuth(t *testing.T) {
	r := setupRouter(companion.NewMemoryStore(nil))

	resp := do(r, http.MethodPost, "/companions", "", newFields())
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCreateCompanionWithinQuota(t *testing.T) {
	store := companion.NewMemoryStore(nil)
	r := setupRouter(store)

	resp := do(r, http.MethodPost, "/companions", "three", newFields())
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created companion.Companion
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Author != "three-user" || created.ID == "" {
		t.Fatalf("unexpected companion %+v", created)
	}
}

func TestCreateCompanionQuotaExhausted(t *testing.T) {
	store := companion.NewMemoryStore(nil)
	r := setupRouter(store)

	for i := 0; i < 3; i++ {
		if resp := do(r, http.MethodPost, "/companions", "three", newFields()); resp.Code != http.StatusCreated {
			t.Fatalf("create %d: expected 201, got %d", i, resp.Code)
		}
	}

	resp := do(r, http.MethodPost, "/companions", "three", newFields())
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, "/companions", "free", newFields())
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without entitlement, got %d", resp.Code)
	}
}

func TestCreateCompanionInvalidFields(t *testing.T) {
	r := setupRouter(companion.NewMemoryStore(nil))

	resp := do(r, http.MethodPost, "/companions", "pro", []byte(`{"name":"Geo"}`))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, "/companions", "pro", []byte(`{`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateCompanionBodyTooLarge(t *testing.T) {
	store := companion.NewMemoryStore(nil)
	r := setupRouter(store)

	body := []byte(`{"name":"` + strings.Repeat("a", respond.MaxBodyBytes+1) + `"}`)
	resp := do(r, http.MethodPost, "/companions", "pro", body)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
	if n, _ := store.CountByAuthor(context.Background(), "pro-user"); n != 0 {
		t.Fatalf("expected no companion stored, got %d", n)
	}
}

func TestPermissions(t *testing.T) {
	r := setupRouter(companion.NewMemoryStore(nil))

	tests := map[string]bool{"free": false, "three": true, "pro": true}
	for token, want := range tests {
		resp := do(r, http.MethodGet, "/me/permissions", token, nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", token, resp.Code)
		}
		var body struct {
			CanCreate bool `json:"canCreate"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.CanCreate != want {
			t.Fatalf("%s: canCreate = %v, want %v", token, body.CanCreate, want)
		}
	}
}

func TestPermissionsStoreFailure(t *testing.T) {
	r := setupRouter(brokenCounter{companion.NewMemoryStore(nil)})

	resp := do(r, http.MethodGet, "/me/permissions", "three", nil)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestOwnedCompanions(t *testing.T) {
	store := companion.NewSeededMemoryStore("system")
	r := setupRouter(store)

	do(r, http.MethodPost, "/companions", "pro", newFields())

	resp := do(r, http.MethodGet, "/me/companions", "pro", nil)
	items := decodeList(t, resp)
	if len(items) != 1 || items[0].Author != "pro-user" {
		t.Fatalf("unexpected owned companions %+v", items)
	}
}
