// Package service guards and shapes the report projections.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	coveragedomain "github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/internal/reports/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// MaxRangeDays caps report date ranges. A year of payments is the widest
// window the ledger serves in one request.
const MaxRangeDays = 366

// ReportService runs the read-only reports.
type ReportService struct {
	reports   *repository.ReportRepository
	authority *identitysvc.Authority
	logger    *logger.Logger
}

// NewReportService creates a new report service
func NewReportService(reports *repository.ReportRepository, authority *identitysvc.Authority, log *logger.Logger) *ReportService {
	return &ReportService{
		reports:   reports,
		authority: authority,
		logger:    log.WithComponent("reports"),
	}
}

var reportableStatuses = map[string]bool{
	coveragedomain.StatusDraft:          true,
	coveragedomain.StatusPendingPayment: true,
	coveragedomain.StatusActive:         true,
	coveragedomain.StatusCancelled:      true,
	coveragedomain.StatusExpired:        true,
}

// PoliciesByStatus reports the tenant's policies in one status.
func (s *ReportService) PoliciesByStatus(ctx context.Context, status string, limit, offset int) ([]repository.PolicyRow, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpReportsView, "policy", ""); err != nil {
		return nil, 0, err
	}
	if !reportableStatuses[status] {
		return nil, 0, errors.Validation(map[string]string{"status": "unknown policy status"})
	}
	return s.reports.PoliciesByStatus(ctx, status, limit, offset)
}

// ExpiringRecords reports records ending within the window.
func (s *ReportService) ExpiringRecords(ctx context.Context, asOf time.Time, days int) ([]repository.ExpiringRow, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpReportsView, "policy", ""); err != nil {
		return nil, err
	}
	if days < 0 || days > MaxRangeDays {
		return nil, errors.Validation(map[string]string{"days": "must be between 0 and 366"})
	}
	return s.reports.ExpiringRecords(ctx, asOf, days)
}

// RegistrationsInRange reports vehicles registered inside the range.
func (s *ReportService) RegistrationsInRange(ctx context.Context, from, to time.Time, limit, offset int) ([]repository.RegistrationRow, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpReportsView, "vehicle", ""); err != nil {
		return nil, 0, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, 0, err
	}
	return s.reports.RegistrationsInRange(ctx, from, to, limit, offset)
}

// PaymentsLedgerResult bundles the ledger rows with the period totals.
type PaymentsLedgerResult struct {
	Rows            []repository.LedgerRow `json:"rows"`
	Total           int64                  `json:"-"`
	VerifiedTotal   decimal.Decimal        `json:"verified_total"`
	UnverifiedTotal decimal.Decimal        `json:"unverified_total"`
}

// PaymentsLedger reports payments received inside the range.
func (s *ReportService) PaymentsLedger(ctx context.Context, from, to time.Time, limit, offset int) (*PaymentsLedgerResult, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpReportsView, "payment", ""); err != nil {
		return nil, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	rows, total, verified, unverified, err := s.reports.PaymentsLedger(ctx, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	return &PaymentsLedgerResult{
		Rows:            rows,
		Total:           total,
		VerifiedTotal:   verified,
		UnverifiedTotal: unverified,
	}, nil
}

func validateRange(from, to time.Time) error {
	if !to.After(from) {
		return errors.Validation(map[string]string{"to": "must be after from"})
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return errors.Validation(map[string]string{"to": "range exceeds one year"})
	}
	return nil
}
