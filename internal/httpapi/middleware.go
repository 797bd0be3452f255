package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"visiond/internal/models"
)

// sessionCookie is the HTTP-only cookie carrying the session token.
const sessionCookie = "access_token"

// extractToken pulls the session token from the cookie, falling back to the
// Authorization bearer header for non-browser clients.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

// requireAuth verifies the session token, loads the user with its role, and
// enforces the role allow-list. An empty allow-list admits any authenticated
// user. Missing, expired, or invalid tokens and vanished users all produce
// 401; an insufficient role produces 403.
func (a *API) requireAuth(allowed ...models.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}

			uid, err := a.Tokens.Verify(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}

			var user models.User
			err = a.DB.WithContext(r.Context()).Preload("Role").First(&user, uid).Error
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					a.Log.Error().Err(err).Uint("uid", uid).Msg("loading user for auth")
				}
				respondError(w, http.StatusUnauthorized, errUnauthorized)
				return
			}

			if len(allowed) > 0 && !roleAllowed(user.Role.Name, allowed) {
				respondError(w, http.StatusForbidden, errForbidden)
				return
			}

			ctx := withAuthUser(r.Context(), AuthUser{
				ID:    user.ID,
				Name:  user.Name,
				Email: user.Email,
				Role:  user.Role.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleAllowed(role models.RoleName, allowed []models.RoleName) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// csrfExempt lists mutating routes reachable before a CSRF token can be
// fetched.
var csrfExempt = map[string]bool{
	"/auth/login":  true,
	"/auth/logout": true,
}

// verifyCSRF enforces the anti-forgery token on mutating requests. The token
// travels in the X-CSRF-Token header or, failing that, a csrf_token field in
// the JSON body; the body is restored for the downstream handler.
func (a *API) verifyCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if csrfExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-CSRF-Token")
		if token == "" {
			token = a.csrfFromBody(r)
		}
		if token == "" || !a.CSRF.Validate(token) {
			respondError(w, http.StatusForbidden, errors.New("invalid or missing CSRF token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) csrfFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var probe struct {
		CSRFToken string `json:"csrf_token"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return ""
	}
	return probe.CSRFToken
}

// cspProduction locks content down to the service itself; cspDevelopment
// stays permissive enough for local dev servers and websockets.
const (
	cspProduction = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; img-src 'self' data: blob:; " +
		"font-src 'self'; connect-src 'self'; media-src 'self'; " +
		"object-src 'none'; frame-ancestors 'none'; base-uri 'self'; " +
		"form-action 'self'"
	cspDevelopment = "default-src 'self' 'unsafe-inline' 'unsafe-eval' data: blob:; " +
		"connect-src 'self' http://localhost:* ws://localhost:*; " +
		"img-src 'self' data: blob: http://localhost:*"
)

// securityHeaders stamps browser hardening headers on every response. HSTS
// only makes sense over TLS, so it is production-only.
func (a *API) securityHeaders(next http.Handler) http.Handler {
	csp := cspDevelopment
	if a.Cfg.Production() {
		csp = cspProduction
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		if a.Cfg.Production() {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr is the rate-limit key for the request. RealIP middleware has
// already folded proxy headers into RemoteAddr.
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}
