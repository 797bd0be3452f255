package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visiond/internal/config"
	"visiond/internal/models"
	"visiond/internal/security"
)

func probeHandler(captured *AuthUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := authUserFrom(r.Context()); ok {
			*captured = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthMissingToken(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	var seen AuthUser
	handler := api.requireAuth()(probeHandler(&seen))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/stats", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, seen.ID)
}

func TestRequireAuthExpiredToken(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	expired, err := security.NewTokenIssuer(testSecret, -time.Hour).Issue(7)
	require.NoError(t, err)

	var seen AuthUser
	handler := api.requireAuth()(probeHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/users/stats", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: expired})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthWrongSecret(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	forged, err := security.NewTokenIssuer("other-secret", time.Hour).Issue(7)
	require.NoError(t, err)

	handler := api.requireAuth()(probeHandler(&AuthUser{}))

	req := httptest.NewRequest(http.MethodGet, "/users/stats", nil)
	req.Header.Set("Authorization", "Bearer "+forged)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthPopulatesContext(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	token, err := api.Tokens.Issue(7)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(userRows(7, "Ada", "ada@example.com", "irrelevant", 2))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(roleRows(2, "ADMIN"))

	var seen AuthUser
	handler := api.requireAuth()(probeHandler(&seen))

	req := httptest.NewRequest(http.MethodGet, "/users/stats", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint(7), seen.ID)
	assert.Equal(t, models.RoleAdmin, seen.Role)
	assert.Equal(t, "ada@example.com", seen.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireAuthInsufficientRole(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	token, err := api.Tokens.Issue(7)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(userRows(7, "Ada", "ada@example.com", "irrelevant", 1))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(roleRows(1, "USER"))

	handler := api.requireAuth(models.AdminRoles()...)(probeHandler(&AuthUser{}))

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAuthVanishedUser(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	token, err := api.Tokens.Issue(99)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	handler := api.requireAuth()(probeHandler(&AuthUser{}))

	req := httptest.NewRequest(http.MethodGet, "/users/stats", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSecurityHeadersProduction(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{EnvMode: "production"})

	handler := api.securityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	h := rec.Header()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Contains(t, h.Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestSecurityHeadersDevelopmentSkipsHSTS(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{EnvMode: "development"})

	handler := api.securityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	h := rec.Header()
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "localhost")
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}

func TestCSRFExemptsLogin(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	handler := api.verifyCSRF(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFRejectsMissingToken(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	handler := api.verifyCSRF(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/scenes", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFAcceptsHeaderToken(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	handler := api.verifyCSRF(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/scenes", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("X-CSRF-Token", api.CSRF.Generate("10.0.0.1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFAcceptsBodyTokenAndRestoresBody(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	var gotBody string
	handler := api.verifyCSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req addSceneRequest
		require.NoError(t, decodeJSON(r, &req))
		gotBody = req.Name
		w.WriteHeader(http.StatusOK)
	}))

	token := api.CSRF.Generate("10.0.0.1")
	body := `{"name":"street","imageUrl":"u","mapUrl":"m","csrf_token":"` + token + `"}`
	req := httptest.NewRequest(http.MethodPost, "/scenes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "street", gotBody)
}

func TestCSRFRejectsTamperedToken(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	handler := api.verifyCSRF(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := api.CSRF.Generate("10.0.0.1") + "00"
	req := httptest.NewRequest(http.MethodDelete, "/scenes/1", nil)
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
