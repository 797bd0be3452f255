package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"visiond/internal/events"
	"visiond/internal/models"
	"visiond/internal/security"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"passwd"`
}

// handleLogin authenticates credentials, opens a session record, and sets
// the session token cookie. Rate limiting and the account lockout are only
// enforced in production mode.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)

	if a.Cfg.Production() {
		if a.Limiter.IsRateLimited(addr, a.Cfg.LoginMaxAttempts, a.Cfg.LoginWindow) {
			loginAttempts.WithLabelValues("rate_limited").Inc()
			respondFailure(w, a.Log, errRateLimited)
			return
		}
		a.Limiter.RecordAttempt(addr)
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		respondFailure(w, a.Log, errBadRequest)
		return
	}

	if a.Cfg.Production() && a.Limiter.IsLocked(req.Email, a.Cfg.AccountLockout) {
		loginAttempts.WithLabelValues("locked").Inc()
		respondFailure(w, a.Log, errAccountLocked)
		return
	}

	var user models.User
	err := a.DB.WithContext(r.Context()).Preload("Role").
		Where("email = ?", req.Email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			loginAttempts.WithLabelValues("failure").Inc()
			respondFailure(w, a.Log, errUnauthorized)
			return
		}
		respondFailure(w, a.Log, fmt.Errorf("looking up user: %w", err))
		return
	}

	if !security.CheckPassword(user.PasswordHash, req.Password) {
		if a.Cfg.Production() {
			a.Limiter.LockAccount(req.Email)
		}
		loginAttempts.WithLabelValues("failure").Inc()
		respondFailure(w, a.Log, errUnauthorized)
		return
	}

	token, err := a.Tokens.Issue(user.ID)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("issuing session token: %w", err))
		return
	}

	session := models.UserSession{
		UserID:    user.ID,
		LoginAt:   a.clock(),
		IPAddress: addr,
		UserAgent: truncateRunes(r.UserAgent(), maxUserAgentLength),
	}
	if err := a.DB.WithContext(r.Context()).Create(&session).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("recording session: %w", err))
		return
	}

	a.setSessionCookie(w, token)
	w.Header().Set("Authorization", "Bearer "+token)

	loginAttempts.WithLabelValues("success").Inc()
	a.Log.Info().Uint("uid", user.ID).Str("addr", addr).Msg("user logged in")
	a.Events.Publish(events.SubjectUserLoggedIn, map[string]any{
		"userId": user.ID,
		"addr":   addr,
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"loggedIn": true,
		"user":     user.ToPublic(),
	})
}

// handleLogout closes the caller's open session records and clears the
// cookie. A request without a valid token still clears the cookie.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := extractToken(r); token != "" {
		if uid, err := a.Tokens.Verify(token); err == nil {
			// GREATEST clamps to login_at so a skewed clock cannot
			// produce a logout before the login it closes.
			err := a.DB.WithContext(r.Context()).Model(&models.UserSession{}).
				Where("user_id = ? AND logout_at IS NULL", uid).
				Update("logout_at", gorm.Expr("GREATEST(login_at, ?)", a.clock())).Error
			if err != nil {
				a.Log.Error().Err(err).Uint("uid", uid).Msg("closing sessions on logout")
			}
		}
	}

	a.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
}

// handleIsLoggedIn reports token validity without requiring auth, so the
// client can probe session state cheaply.
func (a *API) handleIsLoggedIn(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	_, err := a.Tokens.Verify(token)
	if errors.Is(err, security.ErrTokenInvalid) {
		a.Log.Warn().Str("addr", clientAddr(r)).Msg("invalid session token presented")
	}

	respondJSON(w, http.StatusOK, map[string]any{"loggedIn": err == nil})
}

func (a *API) handleGetUserRole(w http.ResponseWriter, r *http.Request) {
	user, _ := authUserFrom(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"role": user.Role})
}

// handleCSRFToken hands out an anti-forgery token tied to the client
// address.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"csrfToken": a.CSRF.Generate(clientAddr(r)),
	})
}

type addUserRequest struct {
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Email    string `json:"email"`
	Password string `json:"passwd"`
	RoleID   uint   `json:"roleId"`
}

// handleAddUser creates an account. Admin only; assigning the SUPERADMIN
// role additionally requires the caller to hold it.
func (a *API) handleAddUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := authUserFrom(r.Context())

	var req addUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	if req.Name == "" || req.LastName == "" || req.Email == "" || req.Password == "" || req.RoleID == 0 {
		respondFailure(w, a.Log, errBadRequest)
		return
	}
	if !security.ValidPasswordLength(req.Password) {
		respondFailure(w, a.Log, fmt.Errorf("%w: password too long", errUnprocessable))
		return
	}

	var role models.Role
	if err := a.DB.WithContext(r.Context()).First(&role, req.RoleID).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("%w: unknown role", errBadRequest))
		return
	}
	if role.Name == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		respondFailure(w, a.Log, fmt.Errorf("%w: only SUPERADMIN can assign SUPERADMIN", errForbidden))
		return
	}

	var count int64
	if err := a.DB.WithContext(r.Context()).Model(&models.User{}).
		Where("email = ?", req.Email).Count(&count).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("checking email uniqueness: %w", err))
		return
	}
	if count > 0 {
		respondFailure(w, a.Log, fmt.Errorf("%w: email already registered", errConflict))
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		respondFailure(w, a.Log, fmt.Errorf("hashing password: %w", err))
		return
	}

	user := models.User{
		Name:         req.Name,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
	}
	if err := a.DB.WithContext(r.Context()).Create(&user).Error; err != nil {
		respondFailure(w, a.Log, fmt.Errorf("saving user: %w", err))
		return
	}

	a.audit(r, &actor.ID, "USER_CREATED", "user", &user.ID, nil)
	a.Log.Info().Uint("actor", actor.ID).Uint("user", user.ID).Msg("user created")
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "user added successfully",
		"user":    user.ToPublic(),
	})
}

// maxUserAgentLength caps what login stores from the User-Agent header.
const maxUserAgentLength = 200

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Domain:   a.Cfg.CookieDomain,
		MaxAge:   int(a.Cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   a.Cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
