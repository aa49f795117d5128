package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	factgovhttp "github.com/fredpottier/factgov/internal/http"
	"github.com/fredpottier/factgov/internal/http/handlers"
	"github.com/fredpottier/factgov/internal/http/middleware"
	"github.com/fredpottier/factgov/internal/platform/logger"
	"github.com/fredpottier/factgov/internal/services"
	"github.com/fredpottier/factgov/internal/store"
	"github.com/fredpottier/factgov/internal/types"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("development")
	require.NoError(t, err)

	facts := store.NewMemoryStore()
	gov := services.NewGovernanceService(log, facts, services.NewLocalKeyLock(), 0.05)
	queries := services.NewQueryService(log, facts)

	return factgovhttp.NewRouter(factgovhttp.RouterConfig{
		Log:            log,
		AuthMiddleware: middleware.NewAuthMiddleware(log, testSecret),
		ServiceName:    "factgov-test",
		HealthHandler:  handlers.NewHealthHandler(),
		FactHandler:    handlers.NewFactHandler(log, gov, queries),
		QueryHandler:   handlers.NewQueryHandler(log, queries),
	})
}

func mintToken(t *testing.T, tenantID, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": tenantID,
		"sub":       subject,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func proposeSLA(t *testing.T, r *gin.Engine, token, value string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/facts", token, map[string]any{
		"subject":      "product-x",
		"predicate":    "sla",
		"object_value": value,
		"unit":         "%",
		"value_type":   "numeric",
		"fact_type":    "SERVICE_LEVEL",
		"confidence":   0.9,
		"valid_from":   "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	return body["uuid"].(string)
}

func TestHealthCheckIsPublic(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthcheck", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestFactRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/facts", "", map[string]any{"subject": "x"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodGet, "/conflicts", "bogus.token.here", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateApproveAndQueryFlow(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "acme", "reviewer@acme")

	id := proposeSLA(t, r, token, "99.7")

	w := doJSON(t, r, http.MethodGet, "/facts/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(types.StatusProposed), decode(t, w)["status"])

	// No approved fact yet, so there is no current truth.
	w = doJSON(t, r, http.MethodGet, "/facts/current?subject=product-x&predicate=sla", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/facts/"+id+"/approve", token, map[string]any{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "reviewer@acme", decode(t, w)["approved_by"])

	w = doJSON(t, r, http.MethodGet, "/facts/current?subject=product-x&predicate=sla", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, id, decode(t, w)["uuid"])
}

func TestConflictingProposalSurfacesInQueue(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "acme", "reviewer@acme")

	a := proposeSLA(t, r, token, "99.7")
	w := doJSON(t, r, http.MethodPost, "/facts/"+a+"/approve", token, map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)

	b := proposeSLA(t, r, token, "90")

	w = doJSON(t, r, http.MethodGet, "/facts/"+b, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(types.StatusConflicted), decode(t, w)["status"])

	w = doJSON(t, r, http.MethodGet, "/conflicts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	conflicts := decode(t, w)["conflicts"].([]any)
	require.Len(t, conflicts, 1)

	w = doJSON(t, r, http.MethodPost, "/facts/"+b+"/reject", token, map[string]any{
		"reason": "contradicts signed contract",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/facts/timeline?subject=product-x&predicate=sla", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	timeline := decode(t, w)["timeline"].([]any)
	require.Len(t, timeline, 2)
}

func TestOverrideEndpoint(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "acme", "reviewer@acme")

	a := proposeSLA(t, r, token, "99.7")
	w := doJSON(t, r, http.MethodPost, "/facts/"+a+"/approve", token, map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/facts", token, map[string]any{
		"subject":      "product-x",
		"predicate":    "sla",
		"object_value": "99.9",
		"unit":         "%",
		"value_type":   "numeric",
		"fact_type":    "SERVICE_LEVEL",
		"confidence":   0.95,
		"valid_from":   "2024-06-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode(t, w)["uuid"].(string)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/facts/%s/override?target=%s", c, a), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	overridden := decode(t, w)["overridden"].(map[string]any)
	require.Equal(t, a, overridden["uuid"])
	require.NotNil(t, overridden["valid_until"])

	w = doJSON(t, r, http.MethodPost, "/facts/"+c+"/approve", token, map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/facts/current?subject=product-x&predicate=sla", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, c, decode(t, w)["uuid"])
}

func TestTenantsAreIsolated(t *testing.T) {
	r := newTestRouter(t)
	acme := mintToken(t, "acme", "pipeline")
	globex := mintToken(t, "globex", "pipeline")

	id := proposeSLA(t, r, acme, "99.7")

	// The other tenant cannot see the fact at all.
	w := doJSON(t, r, http.MethodGet, "/facts/"+id, globex, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/facts/timeline?subject=product-x&predicate=sla", globex, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode(t, w)["timeline"])
}

func TestCreateFactValidation(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "acme", "pipeline")

	w := doJSON(t, r, http.MethodPost, "/facts", token, map[string]any{
		"subject":      "product-x",
		"predicate":    "sla",
		"object_value": "99.7",
		"value_type":   "numeric",
		"fact_type":    "SERVICE_LEVEL",
		"confidence":   0.9,
		"valid_from":   "not-a-date",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_error", decode(t, w)["error"].(map[string]any)["code"])

	w = doJSON(t, r, http.MethodPost, "/facts/not-a-uuid/approve", token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveRejectedFactIsUnprocessable(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "acme", "reviewer@acme")

	id := proposeSLA(t, r, token, "99.7")
	w := doJSON(t, r, http.MethodPost, "/facts/"+id+"/reject", token, map[string]any{"reason": "bad source"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPost, "/facts/"+id+"/approve", token, map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "invalid_transition", decode(t, w)["error"].(map[string]any)["code"])
}
