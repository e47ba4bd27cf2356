package service_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/compliance/domain"
	compliancerepo "github.com/bimatrack/bimatrack-backend/internal/compliance/repository"
	"github.com/bimatrack/bimatrack-backend/internal/compliance/service"
	coveragerepo "github.com/bimatrack/bimatrack-backend/internal/coverage/repository"
	fleetrepo "github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/config"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

const testVehicleID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"

func newComplianceService(t *testing.T) (*service.ComplianceService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	recorder := auditsvc.NewRecorder(
		auditrepo.NewAuditRepository(mockDB.DB),
		auditrepo.NewHistoryRepository(mockDB.DB),
		log,
	)
	authority := identitysvc.NewAuthority(recorder, log)

	svc := service.NewComplianceService(
		coveragerepo.NewPolicyRepository(mockDB.DB),
		coveragerepo.NewPermitRepository(mockDB.DB),
		fleetrepo.NewVehicleRepository(mockDB.DB),
		compliancerepo.NewSummaryRepository(mockDB.DB),
		authority,
		config.ComplianceConfig{ExpiryReminderDaysDefault: 30},
		log,
	)
	return svc, mockDB
}

func vehicleRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "registration_plate", "chassis_number", "engine_number",
		"vehicle_type", "usage_category", "status", "created_at", "updated_at", "deleted_at",
	).AddRow(
		testVehicleID, testutil.TenantID, "T123ABC", "CH-1", "EN-1",
		"bus", "commercial_passenger", "active", now, now, nil,
	)
}

func activePolicyRow(start, end time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "vehicle_id", "policy_number", "start_date", "end_date",
		"premium_amount", "coverage_amount", "policy_type", "notes", "status",
		"activated_at", "cancelled_at", "cancelled_by", "cancellation_reason", "cancellation_note",
		"renewed_from", "created_at", "updated_at", "deleted_at",
	).AddRow(
		"p1", testutil.TenantID, testVehicleID, "POL-2026-ACMEINSURANCE-00001", start, end,
		"500000", nil, "comprehensive", "", "active",
		now, nil, nil, "", "",
		nil, now, now, nil,
	)
}

func emptyPolicyRows() *sqlmock.Rows {
	return testutil.MockRows("id", "tenant_id", "vehicle_id", "policy_number", "start_date", "end_date",
		"premium_amount", "coverage_amount", "policy_type", "notes", "status",
		"activated_at", "cancelled_at", "cancelled_by", "cancellation_reason", "cancellation_note",
		"renewed_from", "created_at", "updated_at", "deleted_at")
}

func activePermitRow(permitType string, start, end time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return testutil.MockRows(
		"id", "tenant_id", "vehicle_id", "permit_type", "reference_number", "issuing_authority",
		"start_date", "end_date", "status", "activated_at", "cancelled_at", "cancelled_by",
		"cancellation_reason", "cancellation_note", "created_at", "updated_at", "deleted_at",
	).AddRow(
		"pm1", testutil.TenantID, testVehicleID, permitType, "LT-2026-0042", "LATRA",
		start, end, "active", now, nil, nil,
		"", "", now, now, nil,
	)
}

func emptyPermitRows() *sqlmock.Rows {
	return testutil.MockRows("id", "tenant_id", "vehicle_id", "permit_type", "reference_number", "issuing_authority",
		"start_date", "end_date", "status", "activated_at", "cancelled_at", "cancelled_by",
		"cancellation_reason", "cancellation_note", "created_at", "updated_at", "deleted_at")
}

func TestVehicleStatus(t *testing.T) {
	asOf := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	t.Run("compliant with policy and required permit in force", func(t *testing.T) {
		svc, mockDB := newComplianceService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		farStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		farEnd := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

		mockDB.ExpectQuery("FROM vehicles WHERE id = $1 AND tenant_id = $2").WillReturnRows(vehicleRow())
		mockDB.ExpectQuery("FROM policies").WillReturnRows(activePolicyRow(farStart, farEnd))
		mockDB.ExpectQuery("FROM permits").WillReturnRows(activePermitRow("latra_license", farStart, farEnd))

		status, err := svc.VehicleStatus(ctx, testVehicleID, asOf)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompliant, status.Status)
		assert.True(t, status.PolicyInForce)
		assert.False(t, status.PolicyExpiring)
		require.Len(t, status.Permits, 1)
		assert.True(t, status.Permits[0].InForce)
		assert.Empty(t, status.Reasons)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("at risk when the policy ends inside the window", func(t *testing.T) {
		svc, mockDB := newComplianceService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		farStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		soonEnd := asOf.AddDate(0, 0, 10)
		farEnd := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

		mockDB.ExpectQuery("FROM vehicles WHERE id = $1 AND tenant_id = $2").WillReturnRows(vehicleRow())
		mockDB.ExpectQuery("FROM policies").WillReturnRows(activePolicyRow(farStart, soonEnd))
		mockDB.ExpectQuery("FROM permits").WillReturnRows(activePermitRow("latra_license", farStart, farEnd))

		status, err := svc.VehicleStatus(ctx, testVehicleID, asOf)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAtRisk, status.Status)
		assert.True(t, status.PolicyExpiring)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("non-compliant with nothing in force", func(t *testing.T) {
		svc, mockDB := newComplianceService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		mockDB.ExpectQuery("FROM vehicles WHERE id = $1 AND tenant_id = $2").WillReturnRows(vehicleRow())
		mockDB.ExpectQuery("FROM policies").WillReturnRows(emptyPolicyRows())
		mockDB.ExpectQuery("FROM permits").WillReturnRows(emptyPermitRows())

		status, err := svc.VehicleStatus(ctx, testVehicleID, asOf)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNonCompliant, status.Status)
		assert.Contains(t, status.Reasons, "no insurance policy in force")
		assert.Contains(t, status.Reasons, "no latra_license permit in force")
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("past days keep their answer after a later cancellation", func(t *testing.T) {
		svc, mockDB := newComplianceService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), nil)

		pastAsOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		termStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		termEnd := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
		cancelledAt := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

		cancelledPolicy := testutil.MockRows(
			"id", "tenant_id", "vehicle_id", "policy_number", "start_date", "end_date",
			"premium_amount", "coverage_amount", "policy_type", "notes", "status",
			"activated_at", "cancelled_at", "cancelled_by", "cancellation_reason", "cancellation_note",
			"renewed_from", "created_at", "updated_at", "deleted_at",
		).AddRow(
			"p1", testutil.TenantID, testVehicleID, "POL-2025-ACMEINSURANCE-00001", termStart, termEnd,
			"500000", nil, "comprehensive", "", "cancelled",
			termStart, cancelledAt, nil, "vehicle_sold", "",
			nil, termStart, cancelledAt, nil,
		)
		cancelledPermit := testutil.MockRows(
			"id", "tenant_id", "vehicle_id", "permit_type", "reference_number", "issuing_authority",
			"start_date", "end_date", "status", "activated_at", "cancelled_at", "cancelled_by",
			"cancellation_reason", "cancellation_note", "created_at", "updated_at", "deleted_at",
		).AddRow(
			"pm1", testutil.TenantID, testVehicleID, "latra_license", "LT-2025-0042", "LATRA",
			termStart, termEnd, "cancelled", termStart, cancelledAt, nil,
			"vehicle_sold", "", termStart, cancelledAt, nil,
		)

		mockDB.ExpectQuery("FROM vehicles WHERE id = $1 AND tenant_id = $2").WillReturnRows(vehicleRow())
		mockDB.ExpectQuery("FROM policies").WillReturnRows(cancelledPolicy)
		mockDB.ExpectQuery("FROM permits").WillReturnRows(cancelledPermit)

		status, err := svc.VehicleStatus(ctx, testVehicleID, pastAsOf)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompliant, status.Status)
		assert.True(t, status.PolicyInForce)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("missing required permit beats an expiring one", func(t *testing.T) {
		svc, mockDB := newComplianceService(t)
		defer mockDB.Close()
		ctx := testutil.Context(testutil.AgentActor(), tenantSettings())

		farStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		farEnd := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

		mockDB.ExpectQuery("FROM vehicles WHERE id = $1 AND tenant_id = $2").WillReturnRows(vehicleRow())
		mockDB.ExpectQuery("FROM policies").WillReturnRows(activePolicyRow(farStart, farEnd))
		// Holds the license but not the roadworthiness certificate the
		// tenant also requires.
		mockDB.ExpectQuery("FROM permits").WillReturnRows(activePermitRow("latra_license", farStart, farEnd))

		status, err := svc.VehicleStatus(ctx, testVehicleID, asOf)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNonCompliant, status.Status)
		require.Len(t, status.Permits, 2)
		assert.Contains(t, status.Reasons, "no roadworthiness permit in force")
		mockDB.ExpectationsWereMet(t)
	})
}

func tenantSettings() map[string]any {
	return map[string]any{
		"required_permit_types": []any{"latra_license", "roadworthiness"},
	}
}
