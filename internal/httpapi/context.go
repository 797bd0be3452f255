package httpapi

import (
	"context"

	"visiond/internal/models"
)

type contextKey int

const userContextKey contextKey = iota

// AuthUser is the authenticated identity handlers read from the request
// context.
type AuthUser struct {
	ID    uint
	Name  string
	Email string
	Role  models.RoleName
}

func withAuthUser(ctx context.Context, u AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// authUserFrom returns the identity placed by requireAuth. The second result
// is false on routes that skipped authentication.
func authUserFrom(ctx context.Context) (AuthUser, bool) {
	u, ok := ctx.Value(userContextKey).(AuthUser)
	return u, ok
}
