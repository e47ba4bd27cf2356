package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	identityrepo "github.com/bimatrack/bimatrack-backend/internal/identity/repository"
	"github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

func newAuthService(t *testing.T) (*service.AuthService, *testutil.MockDB, *session.Store) {
	mockDB := testutil.NewMockDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New("test", "test")
	sessions := session.NewStore(rdb, time.Hour)
	csrf := session.NewCSRFIssuer("test-secret", time.Hour)
	recorder := auditsvc.NewRecorder(
		auditrepo.NewAuditRepository(mockDB.DB),
		auditrepo.NewHistoryRepository(mockDB.DB),
		log,
	)

	cfg := config.AuthConfig{
		MaxFailedLogins: 3,
		LockoutDuration: 15 * time.Minute,
		RateLimitWindow: time.Minute,
		RateLimitMax:    5,
	}

	svc := service.NewAuthService(identityrepo.NewUserRepository(mockDB.DB), sessions, csrf, rdb, recorder, cfg, log)
	return svc, mockDB, sessions
}

func userRows(hash, status string, lockedUntil *time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "email", "password_hash", "role", "status",
		"failed_login_count", "locked_until", "created_at", "updated_at", "deleted_at",
	).AddRow(
		testutil.AdminID, testutil.TenantID, "admin@acme.test", hash, "admin", status,
		0, lockedUntil, now, now, nil,
	)
}

func activeUserRows(hash string, lockedUntil *time.Time) *sqlmock.Rows {
	return userRows(hash, "active", lockedUntil)
}

func TestAuthenticate(t *testing.T) {
	hash, err := service.HashPassword("correct-horse")
	require.NoError(t, err)

	t.Run("valid credentials open a session", func(t *testing.T) {
		svc, mockDB, sessions := newAuthService(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WithArgs("admin@acme.test").
			WillReturnRows(activeUserRows(hash, nil))
		mockDB.ExpectExec("UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = NOW()").
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := svc.Authenticate(context.Background(), "  ADMIN@acme.test ", "correct-horse", "203.0.113.7")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Session.ID)
		assert.NotEmpty(t, res.CSRFToken)
		assert.Equal(t, testutil.AdminID, res.User.ID)

		stored, err := sessions.Get(context.Background(), res.Session.ID)
		require.NoError(t, err)
		assert.Equal(t, testutil.AdminID, stored.UserID)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("unknown email reads as invalid credentials", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.Authenticate(context.Background(), "nobody@acme.test", "whatever", "")
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	})

	t.Run("wrong password counts a failure", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnRows(activeUserRows(hash, nil))
		mockDB.ExpectQuery("SET failed_login_count = failed_login_count + 1,").
			WillReturnRows(testutil.MockRows("failed_login_count").AddRow(1))

		_, err := svc.Authenticate(context.Background(), "admin@acme.test", "wrong-horse", "")
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("reaching the failure limit records a security event", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnRows(activeUserRows(hash, nil))
		mockDB.ExpectQuery("SET failed_login_count = failed_login_count + 1,").
			WillReturnRows(testutil.MockRows("failed_login_count").AddRow(3))
		mockDB.ExpectQuery("INSERT INTO audit_entries").
			WillReturnRows(testutil.MockRows("id", "at_ts").AddRow("e1", time.Now().UTC()))

		_, err := svc.Authenticate(context.Background(), "admin@acme.test", "wrong-horse", "")
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("locked account is rejected before the password check", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		until := time.Now().UTC().Add(10 * time.Minute)
		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnRows(activeUserRows(hash, &until))

		_, err := svc.Authenticate(context.Background(), "admin@acme.test", "correct-horse", "")
		assert.True(t, errors.Is(err, errors.ErrLocked))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("an expired lock no longer blocks login", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		until := time.Now().UTC().Add(-time.Minute)
		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnRows(activeUserRows(hash, &until))
		mockDB.ExpectExec("UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = NOW()").
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := svc.Authenticate(context.Background(), "admin@acme.test", "correct-horse", "")
		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("disabled account is rejected", func(t *testing.T) {
		svc, mockDB, _ := newAuthService(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnRows(userRows(hash, "disabled", nil))

		_, err := svc.Authenticate(context.Background(), "admin@acme.test", "correct-horse", "")
		assert.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	})
}

func TestLoginRateLimit(t *testing.T) {
	svc, mockDB, _ := newAuthService(t)
	defer mockDB.Close()

	for i := 0; i < 5; i++ {
		mockDB.ExpectQuery("FROM users WHERE email = $1 AND deleted_at IS NULL").
			WillReturnError(sql.ErrNoRows)
		_, err := svc.Authenticate(context.Background(), "nobody@acme.test", fmt.Sprintf("guess-%d", i), "")
		require.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	}

	// Sixth attempt inside the window never reaches the database.
	_, err := svc.Authenticate(context.Background(), "nobody@acme.test", "guess-5", "")
	assert.True(t, errors.Is(err, errors.ErrLocked))
	mockDB.ExpectationsWereMet(t)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, mockDB, _ := newAuthService(t)
	defer mockDB.Close()

	require.NoError(t, svc.Logout(context.Background(), "never-existed"))
}
