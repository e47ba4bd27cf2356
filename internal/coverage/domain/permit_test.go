package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
)

func TestPermitCanTransition(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		allowed bool
	}{
		{domain.StatusDraft, domain.StatusActive, true},
		{domain.StatusDraft, domain.StatusCancelled, true},
		{domain.StatusDraft, domain.StatusPendingPayment, false},
		{domain.StatusDraft, domain.StatusExpired, false},
		{domain.StatusActive, domain.StatusCancelled, true},
		{domain.StatusActive, domain.StatusExpired, true},
		{domain.StatusActive, domain.StatusDraft, false},
		{domain.StatusCancelled, domain.StatusActive, false},
		{domain.StatusExpired, domain.StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			p := &domain.Permit{Status: tt.from}
			assert.Equal(t, tt.allowed, p.CanTransition(tt.to))
		})
	}
}

func TestPermitIsImmutable(t *testing.T) {
	assert.False(t, (&domain.Permit{Status: domain.StatusDraft}).IsImmutable())
	assert.True(t, (&domain.Permit{Status: domain.StatusActive}).IsImmutable())
	assert.True(t, (&domain.Permit{Status: domain.StatusCancelled}).IsImmutable())
	assert.True(t, (&domain.Permit{Status: domain.StatusExpired}).IsImmutable())
}

func TestPermitIsInForceOn(t *testing.T) {
	activated := day(2026, 1, 1)
	p := &domain.Permit{
		Status:      domain.StatusActive,
		PermitType:  domain.PermitLATRALicense,
		StartDate:   day(2026, 1, 1),
		EndDate:     day(2026, 6, 30),
		ActivatedAt: &activated,
	}

	assert.True(t, p.IsInForceOn(day(2026, 1, 1)))
	assert.True(t, p.IsInForceOn(day(2026, 6, 30)))
	assert.False(t, p.IsInForceOn(day(2026, 7, 1)))

	t.Run("never activated is never in force", func(t *testing.T) {
		q := &domain.Permit{Status: domain.StatusDraft, StartDate: p.StartDate, EndDate: p.EndDate}
		assert.False(t, q.IsInForceOn(day(2026, 3, 1)))
	})

	t.Run("expired permit still covers past in-term days", func(t *testing.T) {
		q := &domain.Permit{
			Status:      domain.StatusExpired,
			StartDate:   p.StartDate,
			EndDate:     p.EndDate,
			ActivatedAt: &activated,
		}
		assert.True(t, q.IsInForceOn(day(2026, 3, 1)))
		assert.False(t, q.IsInForceOn(day(2026, 7, 1)))
	})

	t.Run("cancelled permit covers past days up to the cancellation", func(t *testing.T) {
		cancelled := day(2026, 4, 1)
		q := &domain.Permit{
			Status:      domain.StatusCancelled,
			StartDate:   p.StartDate,
			EndDate:     p.EndDate,
			ActivatedAt: &activated,
			CancelledAt: &cancelled,
		}
		assert.True(t, q.IsInForceOn(day(2026, 3, 1)))
		assert.False(t, q.IsInForceOn(day(2026, 4, 1)))
	})
}

func TestPermitExpiresWithin(t *testing.T) {
	activated := day(2026, 1, 1)
	p := &domain.Permit{
		Status:      domain.StatusActive,
		StartDate:   day(2026, 1, 1),
		EndDate:     day(2026, 2, 28),
		ActivatedAt: &activated,
	}

	assert.True(t, p.ExpiresWithin(day(2026, 2, 10), 30))
	assert.False(t, p.ExpiresWithin(day(2026, 1, 2), 30))
}

func TestValidPermitCancellationReason(t *testing.T) {
	for _, reason := range []string{
		domain.PermitCancelCustomerRequest,
		domain.PermitCancelVehicleSold,
		domain.PermitCancelDuplicate,
		domain.PermitCancelDataError,
		domain.PermitCancelExpiredEarly,
		domain.PermitCancelOther,
	} {
		assert.True(t, domain.ValidPermitCancellationReason(reason), reason)
	}

	// Policy-only reasons do not leak into the permit set.
	assert.False(t, domain.ValidPermitCancellationReason(domain.PolicyCancelNonPayment))
	assert.False(t, domain.ValidPermitCancellationReason(""))
}
