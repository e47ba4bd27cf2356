package service_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	"github.com/bimatrack/bimatrack-backend/internal/coverage/service"
	notificationdomain "github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

const testPaymentID = "dddddddd-dddd-dddd-dddd-dddddddddddd"

func paymentRow(verifiedAt *time.Time, verifiedBy *string) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "policy_id", "amount", "received_at", "verified_at", "verified_by",
		"reference", "created_at", "updated_at", "deleted_at",
	).AddRow(
		testPaymentID, testutil.TenantID, testPolicyID, "250000", now, verifiedAt, verifiedBy,
		"MPESA-XY123", now, now, nil,
	)
}

func TestRecordPayment(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("records a payment against a pending policy", func(t *testing.T) {
		svc, mockDB, notifier := newTestServiceWithNotifier(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusPendingPayment, "500000", start, end))
		mockDB.ExpectBegin()
		now := time.Now().UTC()
		mockDB.ExpectQuery("INSERT INTO payments").
			WillReturnRows(testutil.MockRows("id", "created_at", "updated_at").AddRow(testPaymentID, now, now))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectCommit()

		p, err := svc.RecordPayment(ctx, testPolicyID, service.PaymentInput{
			Amount:    decimal.NewFromInt(250000),
			Reference: "MPESA-XY123",
		})
		require.NoError(t, err)
		assert.Equal(t, testPaymentID, p.ID)
		assert.False(t, p.IsVerified())

		// Verifiers get a heads-up once the payment has landed.
		require.Len(t, notifier.enqueued, 1)
		notice := notifier.enqueued[0]
		assert.Equal(t, notificationdomain.KindPaymentPending, notice.Kind)
		assert.Equal(t, "payment_pending:"+testPaymentID, notice.DedupeKey)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("cancelled policies take no further payments", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM policies WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(policyRow(domain.StatusCancelled, "500000", start, end))

		_, err := svc.RecordPayment(ctx, testPolicyID, service.PaymentInput{
			Amount: decimal.NewFromInt(250000),
		})
		assert.True(t, errors.Is(err, errors.ErrConflict))
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("amount must be positive", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		_, err := svc.RecordPayment(ctx, testPolicyID, service.PaymentInput{
			Amount: decimal.NewFromInt(-100),
		})
		assert.True(t, errors.Is(err, errors.ErrValidation))
		mockDB.ExpectationsWereMet(t)
	})
}

func TestVerifyPayment(t *testing.T) {
	t.Run("marks the payment verified and audits the change", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		mockDB.ExpectQuery("FROM payments WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(paymentRow(nil, nil))
		mockDB.ExpectBegin()
		verifiedAt := time.Now().UTC()
		verifier := testutil.ManagerID
		mockDB.ExpectQuery("UPDATE payments").
			WillReturnRows(paymentRow(&verifiedAt, &verifier))
		mockDB.ExpectQuery("INSERT INTO audit_entries").WillReturnRows(auditInsertRows())
		mockDB.ExpectCommit()

		p, err := svc.VerifyPayment(ctx, testPaymentID)
		require.NoError(t, err)
		assert.True(t, p.IsVerified())
		require.NotNil(t, p.VerifiedBy)
		assert.Equal(t, testutil.ManagerID, *p.VerifiedBy)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("re-verifying keeps the original verifier and skips the audit", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.ManagerActor(), nil)

		verifiedAt := time.Now().UTC().Add(-24 * time.Hour)
		original := testutil.AdminID
		mockDB.ExpectQuery("FROM payments WHERE id = $1 AND tenant_id = $2").
			WillReturnRows(paymentRow(&verifiedAt, &original))
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("UPDATE payments").
			WillReturnRows(paymentRow(&verifiedAt, &original))
		mockDB.ExpectCommit()

		p, err := svc.VerifyPayment(ctx, testPaymentID)
		require.NoError(t, err)
		require.NotNil(t, p.VerifiedBy)
		assert.Equal(t, testutil.AdminID, *p.VerifiedBy)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("agents may not verify", func(t *testing.T) {
		svc, mockDB := newTestService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		_, err := svc.VerifyPayment(ctx, testPaymentID)
		assert.True(t, errors.Is(err, errors.ErrForbidden))
		mockDB.ExpectationsWereMet(t)
	})
}
