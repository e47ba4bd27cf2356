package service_test

import (
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
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

const otherAdminID = "55555555-5555-5555-5555-555555555555"

func newUserService(t *testing.T) (*service.UserService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New("test", "test")
	sessions := session.NewStore(rdb, time.Hour)
	recorder := auditsvc.NewRecorder(
		auditrepo.NewAuditRepository(mockDB.DB),
		auditrepo.NewHistoryRepository(mockDB.DB),
		log,
	)
	authority := service.NewAuthority(recorder, log)

	svc := service.NewUserService(identityrepo.NewUserRepository(mockDB.DB), sessions, authority, mockDB.DB, recorder, log)
	return svc, mockDB
}

func managedUserRows(id, role string) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "email", "password_hash", "role", "status",
		"failed_login_count", "locked_until", "created_at", "updated_at", "deleted_at",
	).AddRow(
		id, testutil.TenantID, "staff@acme.test", "$2a$10$unused", role, "active",
		0, nil, now, now, nil,
	)
}

func TestResetPassword(t *testing.T) {
	t.Run("tenant admin resets an agent's password", func(t *testing.T) {
		svc, mockDB := newUserService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AdminActor(), nil)

		mockDB.ExpectQuery("FROM users WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(managedUserRows(testutil.AgentID, "agent"))
		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE users SET password_hash").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").
			WillReturnRows(testutil.MockRows("id", "at_ts").AddRow("e1", time.Now().UTC()))
		mockDB.ExpectCommit()

		err := svc.ResetPassword(ctx, testutil.AgentID, "brand-new-password")
		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("tenant admin cannot reset another admin's password", func(t *testing.T) {
		svc, mockDB := newUserService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AdminActor(), nil)

		mockDB.ExpectQuery("FROM users WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(managedUserRows(otherAdminID, "admin"))

		err := svc.ResetPassword(ctx, otherAdminID, "brand-new-password")
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("super admin resets a tenant admin's password", func(t *testing.T) {
		svc, mockDB := newUserService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.SuperAdminActor(), nil)

		mockDB.ExpectQuery("FROM users WHERE id = $1 AND deleted_at IS NULL").
			WillReturnRows(managedUserRows(otherAdminID, "admin"))
		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE users SET password_hash").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").
			WillReturnRows(testutil.MockRows("id", "at_ts").AddRow("e1", time.Now().UTC()))
		mockDB.ExpectCommit()

		err := svc.ResetPassword(ctx, otherAdminID, "brand-new-password")
		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("short passwords are rejected", func(t *testing.T) {
		svc, mockDB := newUserService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AdminActor(), nil)

		mockDB.ExpectQuery("FROM users WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(managedUserRows(testutil.AgentID, "agent"))

		err := svc.ResetPassword(ctx, testutil.AgentID, "short")
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestSetStatusManagedUsers(t *testing.T) {
	t.Run("tenant admin cannot disable another admin", func(t *testing.T) {
		svc, mockDB := newUserService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AdminActor(), nil)

		mockDB.ExpectQuery("FROM users WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(managedUserRows(otherAdminID, "admin"))

		err := svc.SetStatus(ctx, otherAdminID, "disabled")
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		mockDB.ExpectationsWereMet(t)
	})
}
