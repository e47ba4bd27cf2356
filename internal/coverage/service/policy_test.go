package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	notificationdomain "github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	notificationsvc "github.com/bimatrack/bimatrack-backend/internal/notifications/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

const (
	testPolicyID  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testVehicleID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

// notifierStub records enqueued notifications instead of touching the
// database.
type notifierStub struct {
	enqueued []notificationsvc.EnqueueInput
}

func (n *notifierStub) Enqueue(_ context.Context, in notificationsvc.EnqueueInput) (int, error) {
	n.enqueued = append(n.enqueued, in)
	return 1, nil
}

func newTestService(t *testing.T) (*service.CoverageService, *testutil.MockDB) {
	svc, mockDB, _ := newTestServiceWithNotifier(t)
	return svc, mockDB
}

func newTestServiceWithNotifier(t *testing.T) (*service.CoverageService, *testutil.MockDB, *notifierStub) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")

	auditRepo := auditrepo.NewAuditRepository(mockDB.DB)
	historyRepo := auditrepo.NewHistoryRepository(mockDB.DB)
	recorder := auditsvc.NewRecorder(auditRepo, historyRepo, log)
	authority := identitysvc.NewAuthority(recorder, log)
	notifier := &notifierStub{}

	svc := service.NewCoverageService(
		repository.NewPolicyRepository(mockDB.DB),
		repository.NewPermitRepository(mockDB.DB),
		repository.NewPaymentRepository(mockDB.DB),
		fleetrepo.NewVehicleRepository(mockDB.DB),
		authority,
		mockDB.DB,
		recorder,
		messaging.NoopPublisher{},
		notifier,
		log,
	)
	return svc, mockDB, notifier
}

func policyRow(status string, premium string, start, end time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "vehicle_id", "policy_number", "start_date", "end_date",
		"premium_amount", "coverage_amount", "policy_type", "notes", "status",
		"activated_at", "cancelled_at", "cancelled_by", "cancellation_reason", "cancellation_note",
		"renewed_from", "created_at", "updated_at", "deleted_at",
	).AddRow(
		testPolicyID, testutil.TenantID, testVehicleID, "POL-2026-ACMEINSURANCE-00001", start, end,
		premium, nil, "comprehensive", "", status,
		nil, nil, nil, "", "",
		nil, now, now, nil,
	)
}

func auditInsertRows() *sqlmock.Rows {
	return testutil.MockRows("id", "at_ts").AddRow("e1", time.Now().UTC())
}

func historyInsertRows(version int) *sqlmock.Rows {
	return testutil.MockRows("id", "version", "recorded_at").AddRow("h1", version, time.Now().UTC())
}

func existsRow(exists bool) *sqlmock.Rows {
	return testutil.MockRows("exists").AddRow(exists)
}

func TestActivatePolicy(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC().AddDate(1, 0, 0)

	t.Run("activates a fully paid policy", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, end))
		mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
			WillReturnRows(testutil.MockRows("sum").AddRow("500000"))
		mockDB.ExpectQuery("SELECT 1 FROM policies").WillReturnRows(existsRow(false))

		mockDB.ExpectBegin()
		mockDB.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectQuery("SELECT 1 FROM policies").WillReturnRows(existsRow(false))
		mockDB.ExpectExec("UPDATE policies").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(2))
		mockDB.ExpectCommit()

		p, err := svc.ActivatePolicy(ctx, testPolicyID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, p.Status)
		require.NotNil(t, p.ActivatedAt)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects when verified payments fall short", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, end))
		mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
			WillReturnRows(testutil.MockRows("sum").AddRow("200000"))
		// The rejection is audited outside any transaction.
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrPaymentIncomplete))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects when the vehicle already has an active policy", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, end))
		mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
			WillReturnRows(testutil.MockRows("sum").AddRow("500000"))
		mockDB.ExpectQuery("SELECT 1 FROM policies").WillReturnRows(existsRow(true))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrOverlap))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects a draft policy", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusDraft, "500000", start, end))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects a policy whose term has already ended", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		pastEnd := time.Now().UTC().AddDate(0, 0, -1)
		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, pastEnd))
		mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
			WillReturnRows(testutil.MockRows("sum").AddRow("500000"))
		mockDB.ExpectQuery("SELECT 1 FROM policies").WillReturnRows(existsRow(false))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects a policy ending today", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		today := time.Now().UTC()
		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, today))
		mockDB.ExpectQuery("SELECT COALESCE(SUM(amount), 0) FROM payments").
			WillReturnRows(testutil.MockRows("sum").AddRow("500000"))
		mockDB.ExpectQuery("SELECT 1 FROM policies").WillReturnRows(existsRow(false))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("agents may not activate", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		_, err := svc.ActivatePolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestCancelPolicy(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("cancels an active policy", func(t *testing.T) {
		svc, mockDB, notifier := newTestServiceWithNotifier(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusActive, "500000", start, end))
		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE policies").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(3))
		mockDB.ExpectCommit()

		p, err := svc.CancelPolicy(ctx, testPolicyID, domain.PolicyCancelCustomerRequest, "sold the vehicle")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, p.Status)
		assert.Equal(t, domain.PolicyCancelCustomerRequest, p.CancellationReason)
		require.NotNil(t, p.CancelledBy)
		assert.Equal(t, testutil.ManagerID, *p.CancelledBy)

		require.Len(t, notifier.enqueued, 1)
		notice := notifier.enqueued[0]
		assert.Equal(t, notificationdomain.KindCancellation, notice.Kind)
		assert.Equal(t, testutil.TenantID, notice.TenantID)
		assert.ElementsMatch(t, []string{"admin", "manager"}, notice.Roles)
		assert.Equal(t, "cancellation:policy:"+testPolicyID, notice.DedupeKey)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("cancelling twice is rejected and audited", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusCancelled, "500000", start, end))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.CancelPolicy(ctx, testPolicyID, domain.PolicyCancelCustomerRequest, "")
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("expired policies cannot be cancelled", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusExpired, "500000", start, end))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.CancelPolicy(ctx, testPolicyID, domain.PolicyCancelDataError, "")
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects an unknown reason before touching the record", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		_, err := svc.CancelPolicy(ctx, testPolicyID, "changed_my_mind", "")
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestUpdatePolicyDraft(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("active policies are immutable and the attempt is audited", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusActive, "500000", start, end))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.UpdatePolicyDraft(ctx, testPolicyID, service.PolicyInput{
			VehicleID:     testVehicleID,
			StartDate:     start,
			EndDate:       end,
			PremiumAmount: decimal.NewFromInt(600000),
		})
		assert.True(t, errors.Is(err, errors.ErrImmutable))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rejects an inverted date range", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		_, err := svc.UpdatePolicyDraft(ctx, testPolicyID, service.PolicyInput{
			VehicleID:     testVehicleID,
			StartDate:     end,
			EndDate:       start,
			PremiumAmount: decimal.NewFromInt(600000),
		})
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestSubmitPolicy(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("moves a draft into pending payment", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusDraft, "500000", start, end))
		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE policies").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(2))
		mockDB.ExpectCommit()

		p, err := svc.SubmitPolicy(ctx, testPolicyID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingPayment, p.Status)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("cannot submit an already submitted policy", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, end))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.SubmitPolicy(ctx, testPolicyID)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestRenewPolicy(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("drafts a successor starting the day after the source ends", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusActive, "500000", start, end))
		mockDB.ExpectBegin()
		// The sequence counts policies of the successor's start-date year.
		mockDB.ExpectQuery("SELECT COUNT(*) FROM policies").
			WithArgs(testutil.TenantID, 2027).
			WillReturnRows(testutil.MockRows("count").AddRow(3))
		now := time.Now().UTC()
		mockDB.ExpectQuery("INSERT INTO policies").
			WillReturnRows(testutil.MockRows("id", "created_at", "updated_at").AddRow("p2", now, now))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(1))
		mockDB.ExpectCommit()

		successor, err := svc.RenewPolicy(ctx, testPolicyID, service.RenewalInput{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDraft, successor.Status)
		assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), successor.StartDate)
		assert.Equal(t, time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC), successor.EndDate)
		assert.Equal(t, "POL-2027-ACMEINSURANCE-00004", successor.PolicyNumber)
		require.NotNil(t, successor.RenewedFrom)
		assert.Equal(t, testPolicyID, *successor.RenewedFrom)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("renewal boundary comes from tenant settings", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), map[string]any{
			"renewal_boundary_days": float64(7),
		})

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusExpired, "500000", start, end))
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT COUNT(*) FROM policies").
			WillReturnRows(testutil.MockRows("count").AddRow(0))
		now := time.Now().UTC()
		mockDB.ExpectQuery("INSERT INTO policies").
			WillReturnRows(testutil.MockRows("id", "created_at", "updated_at").AddRow("p2", now, now))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(1))
		mockDB.ExpectCommit()

		successor, err := svc.RenewPolicy(ctx, testPolicyID, service.RenewalInput{})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2027, 1, 7, 0, 0, 0, 0, time.UTC), successor.StartDate)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("drafts cannot be renewed", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusDraft, "500000", start, end))

		_, err := svc.RenewPolicy(ctx, testPolicyID, service.RenewalInput{})
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestExpirePolicy(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("only the system actor may expire", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AdminActor(), nil)

		p := &domain.Policy{ID: testPolicyID, Status: domain.StatusActive, StartDate: start, EndDate: end}
		err := svc.ExpirePolicy(ctx, p)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		assert.Equal(t, domain.StatusActive, p.Status)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("expires an overdue active policy", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.SystemContext()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("UPDATE policies").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectQuery("INSERT INTO history_records").WillReturnRows(historyInsertRows(4))
		mockDB.ExpectCommit()

		p := &domain.Policy{ID: testPolicyID, VehicleID: testVehicleID, Status: domain.StatusActive, StartDate: start, EndDate: end}
		err := svc.ExpirePolicy(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, p.Status)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("cancelled policies do not expire", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.SystemContext()

		p := &domain.Policy{ID: testPolicyID, Status: domain.StatusCancelled}
		err := svc.ExpirePolicy(ctx, p)
		assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestCreatePolicyDraftValidation(t *testing.T) {
	t.Run("premium must be positive", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		_, err := svc.CreatePolicyDraft(ctx, service.PolicyInput{
			VehicleID:     testVehicleID,
			StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			PremiumAmount: decimal.Zero,
		})
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("super admins cannot draft tenant records", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.SuperAdminActor(), nil)

		// The denial itself lands in the audit trail as a security event.
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())

		_, err := svc.CreatePolicyDraft(ctx, service.PolicyInput{
			VehicleID:     testVehicleID,
			StartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			PremiumAmount: decimal.NewFromInt(500000),
		})
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		mockDB.ExpectationsWereMet(t)
	})
}
