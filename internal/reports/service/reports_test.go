package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	auditrepo "github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/internal/reports/repository"
	"github.com/bimatrack/bimatrack-backend/internal/reports/service"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/testutil"
)

func newReportService(t *testing.T) (*service.ReportService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	recorder := auditsvc.NewRecorder(
		auditrepo.NewAuditRepository(mockDB.DB),
		auditrepo.NewHistoryRepository(mockDB.DB),
		log,
	)
	authority := identitysvc.NewAuthority(recorder, log)
	return service.NewReportService(repository.NewReportRepository(mockDB.DB), authority, log), mockDB
}

func TestPoliciesByStatusValidation(t *testing.T) {
	svc, mockDB := newReportService(t)
	defer mockDB.Close()
	ctx := testutil.Context(testutil.AgentActor(), nil)

	_, _, err := svc.PoliciesByStatus(ctx, "in_limbo", 20, 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestExpiringRecordsWindowBounds(t *testing.T) {
	svc, mockDB := newReportService(t)
	defer mockDB.Close()
	ctx := testutil.Context(testutil.AgentActor(), nil)
	asOf := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	_, err := svc.ExpiringRecords(ctx, asOf, -1)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.ExpiringRecords(ctx, asOf, service.MaxRangeDays+1)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestPaymentsLedgerRangeValidation(t *testing.T) {
	svc, mockDB := newReportService(t)
	defer mockDB.Close()
	ctx := testutil.Context(testutil.AgentActor(), nil)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("to must come after from", func(t *testing.T) {
		_, err := svc.PaymentsLedger(ctx, from, from, 20, 0)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("range capped at a year", func(t *testing.T) {
		_, err := svc.PaymentsLedger(ctx, from, from.AddDate(2, 0, 0), 20, 0)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}
