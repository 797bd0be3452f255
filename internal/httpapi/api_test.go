package httpapi

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"visiond/internal/config"
	"visiond/internal/security"
)

const testSecret = "unit-test-secret"

func newTestAPI(t *testing.T, cfg config.Config) (*API, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)

	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.LoginMaxAttempts == 0 {
		cfg.LoginMaxAttempts = 5
	}
	if cfg.LoginWindow == 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	if cfg.AccountLockout == 0 {
		cfg.AccountLockout = 30 * time.Minute
	}

	return &API{
		DB:      gdb,
		Cfg:     cfg,
		Log:     zerolog.Nop(),
		Tokens:  security.NewTokenIssuer(testSecret, cfg.SessionTTL),
		CSRF:    security.NewCSRFGuard(testSecret, time.Hour),
		Limiter: security.NewRateLimiter(),
	}, mock
}

// userRows builds the result set for a users lookup.
func userRows(id uint, name, email, passwordHash string, roleID uint) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "last_name", "email", "password_hash", "role_id"}).
		AddRow(id, name, "Tester", email, passwordHash, roleID)
}

func roleRows(id uint, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name"}).AddRow(id, name)
}
