package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visiond/internal/config"
	"visiond/internal/security"
)

func loginRequestFor(email, password string) *http.Request {
	body := `{"email":"` + email + `","passwd":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:40000"
	return req
}

func TestLoginSuccess(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	hash, err := security.HashPassword("Passw0rd")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(userRows(1, "Ada", "a@x.com", hash, 1))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(roleRows(1, "USER"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "user_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	api.handleLogin(rec, loginRequestFor("a@x.com", "Passw0rd"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LoggedIn bool `json:"loggedIn"`
		User     struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.LoggedIn)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.Equal(t, "USER", resp.User.Role)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie must be set")
	assert.True(t, cookie.HttpOnly)

	uid, err := api.Tokens.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, uint(1), uid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginWrongPassword(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	hash, err := security.HashPassword("Passw0rd")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(userRows(1, "Ada", "a@x.com", hash, 1))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(roleRows(1, "USER"))

	rec := httptest.NewRecorder()
	api.handleLogin(rec, loginRequestFor("a@x.com", "wrong"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	api.handleLogin(rec, loginRequestFor("nobody@x.com", "whatever"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Six login attempts with a wrong password inside the window: the first
// fails on credentials, the lockout then shields the account, and the sixth
// trips the per-address limit.
func TestLoginRateLimitedOnSixthAttempt(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{EnvMode: "production"})

	hash, err := security.HashPassword("Passw0rd")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(userRows(1, "Ada", "a@x.com", hash, 1))
	mock.ExpectQuery(`SELECT \* FROM "roles"`).
		WillReturnRows(roleRows(1, "USER"))

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		api.handleLogin(rec, loginRequestFor("a@x.com", "wrong"))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusUnauthorized, codes[0])
	for _, code := range codes[1:5] {
		assert.Equal(t, http.StatusLocked, code)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[5])
}

func TestLoginLockoutSkippedInDevelopment(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{EnvMode: "development"})

	hash, err := security.HashPassword("Passw0rd")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`SELECT \* FROM "users"`).
			WillReturnRows(userRows(1, "Ada", "a@x.com", hash, 1))
		mock.ExpectQuery(`SELECT \* FROM "roles"`).
			WillReturnRows(roleRows(1, "USER"))
	}

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		api.handleLogin(rec, loginRequestFor("a@x.com", "wrong"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

// Logout closes open sessions with a clamp in the update itself, so the
// stamped logout can never precede the login even with a skewed clock.
func TestLogoutClampsLogoutToLogin(t *testing.T) {
	api, mock := newTestAPI(t, config.Config{})

	token, err := api.Tokens.Issue(5)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "user_sessions" SET .*GREATEST\(login_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec := httptest.NewRecorder()
	api.handleLogout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Session records cap the stored User-Agent at 200 runes so an oversized
// header cannot bloat the row.
func TestUserAgentTruncated(t *testing.T) {
	long := strings.Repeat("y", 500)
	got := truncateRunes(long, maxUserAgentLength)
	assert.Len(t, []rune(got), 200)

	multibyte := strings.Repeat("ü", 300)
	got = truncateRunes(multibyte, maxUserAgentLength)
	assert.Len(t, []rune(got), 200)
	assert.True(t, strings.HasPrefix(multibyte, got))

	short := "Mozilla/5.0"
	assert.Equal(t, short, truncateRunes(short, maxUserAgentLength))
}

func TestLoginMissingFields(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@x.com"}`))
	rec := httptest.NewRecorder()
	api.handleLogin(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIsLoggedInReportsTokenState(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	token, err := api.Tokens.Issue(4)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/isLoggedIn", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.handleIsLoggedIn(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loggedIn":true`)

	req = httptest.NewRequest(http.MethodGet, "/auth/isLoggedIn", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	api.handleIsLoggedIn(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loggedIn":false`)
}

func TestCSRFTokenRoundTrip(t *testing.T) {
	api, _ := newTestAPI(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	api.handleCSRFToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, api.CSRF.Validate(resp.CSRFToken))
}
