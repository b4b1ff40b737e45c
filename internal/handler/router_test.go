package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/companion-academy/backend/internal/identity"
	"github.com/zhouzirui/companion-academy/backend/internal/metrics"
	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/catalog"
	companionService "github.com/zhouzirui/companion-academy/backend/internal/service/companion"
	"github.com/zhouzirui/companion-academy/backend/internal/service/history"
	"github.com/zhouzirui/companion-academy/backend/internal/service/quota"
)

func newTestRouter(t *testing.T) (http.Handler, *identity.JWTProvider, *companion.MemoryStore) {
	t.Helper()

	provider, err := identity.NewJWTProvider("router-secret", "")
	require.NoError(t, err)

	store := companion.NewSeededMemoryStore("system")
	collector := metrics.NewCollector("test")

	router := NewRouter(Services{
		Catalog:  catalog.NewEngine(store),
		History:  history.NewAggregator(store),
		Quota:    quota.NewEnforcer(store, quota.DefaultTiers(), collector),
		Writer:   companionService.NewWriter(store, collector),
		Identity: provider,
		Metrics:  collector,
	}, nil)
	return router, provider, store
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestRouterCreateAndLaunchFlow(t *testing.T) {
	router, provider, _ := newTestRouter(t)

	token, err := provider.Issue(caller.Caller{UserID: "alice", Plan: quota.PlanPro}, time.Minute)
	require.NoError(t, err)

	body := `{"name":"Geo","subject":"geography","topic":"Plate tectonics","voice":"female","style":"casual","duration":20}`
	req := httptest.NewRequest(http.MethodPost, "/api/companions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"author":"alice"`)

	req = httptest.NewRequest(http.MethodGet, "/api/companions?subject=geo", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Plate tectonics")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `test_companions_created_total{subject="other"} 1`)
	assert.Contains(t, resp.Body.String(), `test_quota_decisions_total{outcome="allowed",tier="unlimited"} 1`)
}

func TestRouterRejectsForgedToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	other, err := identity.NewJWTProvider("other-secret", "")
	require.NoError(t, err)
	token, err := other.Issue(caller.Caller{UserID: "mallory"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRouterLessonWithoutTutor(t *testing.T) {
	router, provider, store := newTestRouter(t)

	all, err := store.ListCompanions(context.Background(), companion.ListQuery{Limit: 1})
	require.NoError(t, err)
	path := "/api/companions/" + all[0].ID + "/lesson"

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	token, err := provider.Issue(caller.Caller{UserID: "alice"}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/companions", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.GreaterOrEqual(t, resp.Code, 200)
	assert.Less(t, resp.Code, 300)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, resp.Header().Values("Vary"), "Origin")
}

func TestRouterCORSActualRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/companions", nil)
	req.Header.Set("Origin", "https://app.example")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Values("Vary"), "Origin")
}

func TestRouterBareOptionsIsNotPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/api/companions", nil))

	// No preflight headers: the request reaches the router, which has no OPTIONS route.
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
