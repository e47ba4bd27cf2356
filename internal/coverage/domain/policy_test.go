package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bimatrack/bimatrack-backend/internal/coverage/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPolicyCanTransition(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		allowed bool
	}{
		{domain.StatusDraft, domain.StatusPendingPayment, true},
		{domain.StatusDraft, domain.StatusCancelled, true},
		{domain.StatusDraft, domain.StatusActive, false},
		{domain.StatusDraft, domain.StatusExpired, false},
		{domain.StatusPendingPayment, domain.StatusActive, true},
		{domain.StatusPendingPayment, domain.StatusCancelled, true},
		{domain.StatusPendingPayment, domain.StatusDraft, false},
		{domain.StatusActive, domain.StatusCancelled, true},
		{domain.StatusActive, domain.StatusExpired, true},
		{domain.StatusActive, domain.StatusDraft, false},
		{domain.StatusCancelled, domain.StatusActive, false},
		{domain.StatusCancelled, domain.StatusDraft, false},
		{domain.StatusExpired, domain.StatusActive, false},
		{domain.StatusExpired, domain.StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			p := &domain.Policy{Status: tt.from}
			assert.Equal(t, tt.allowed, p.CanTransition(tt.to))
		})
	}
}

func TestPolicyIsImmutable(t *testing.T) {
	tests := []struct {
		status    string
		immutable bool
	}{
		{domain.StatusDraft, false},
		{domain.StatusPendingPayment, false},
		{domain.StatusActive, true},
		{domain.StatusCancelled, true},
		{domain.StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p := &domain.Policy{Status: tt.status}
			assert.Equal(t, tt.immutable, p.IsImmutable())
		})
	}
}

func TestPolicyIsInForceOn(t *testing.T) {
	activated := day(2026, 1, 1)
	p := &domain.Policy{
		Status:      domain.StatusActive,
		StartDate:   day(2026, 1, 1),
		EndDate:     day(2026, 12, 31),
		ActivatedAt: &activated,
	}

	t.Run("in force across the whole term inclusive", func(t *testing.T) {
		assert.True(t, p.IsInForceOn(day(2026, 1, 1)))
		assert.True(t, p.IsInForceOn(day(2026, 6, 15)))
		assert.True(t, p.IsInForceOn(day(2026, 12, 31)))
	})

	t.Run("not in force outside the term", func(t *testing.T) {
		assert.False(t, p.IsInForceOn(day(2025, 12, 31)))
		assert.False(t, p.IsInForceOn(day(2027, 1, 1)))
	})

	t.Run("time of day does not matter", func(t *testing.T) {
		assert.True(t, p.IsInForceOn(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
	})

	t.Run("active but not yet started is not in force", func(t *testing.T) {
		early := day(2026, 5, 20)
		future := &domain.Policy{
			Status:      domain.StatusActive,
			StartDate:   day(2026, 6, 1),
			EndDate:     day(2027, 5, 31),
			ActivatedAt: &early,
		}
		assert.False(t, future.IsInForceOn(day(2026, 5, 31)))
	})

	t.Run("never activated is never in force", func(t *testing.T) {
		for _, status := range []string{domain.StatusDraft, domain.StatusPendingPayment} {
			q := &domain.Policy{Status: status, StartDate: p.StartDate, EndDate: p.EndDate}
			assert.False(t, q.IsInForceOn(day(2026, 6, 15)), status)
		}
	})

	t.Run("cancelled policy covers past days up to the cancellation", func(t *testing.T) {
		activatedAt := day(2025, 1, 1)
		cancelledAt := day(2025, 9, 1)
		q := &domain.Policy{
			Status:      domain.StatusCancelled,
			StartDate:   day(2025, 1, 1),
			EndDate:     day(2025, 12, 31),
			ActivatedAt: &activatedAt,
			CancelledAt: &cancelledAt,
		}
		assert.True(t, q.IsInForceOn(day(2025, 6, 1)))
		assert.False(t, q.IsInForceOn(day(2025, 9, 1)))
		assert.False(t, q.IsInForceOn(day(2025, 10, 1)))
	})

	t.Run("expired policy still covers past in-term days", func(t *testing.T) {
		activatedAt := day(2025, 1, 1)
		q := &domain.Policy{
			Status:      domain.StatusExpired,
			StartDate:   day(2025, 1, 1),
			EndDate:     day(2025, 12, 31),
			ActivatedAt: &activatedAt,
		}
		assert.True(t, q.IsInForceOn(day(2025, 6, 15)))
		assert.False(t, q.IsInForceOn(day(2026, 1, 1)))
	})
}

func TestPolicyExpiresWithin(t *testing.T) {
	activated := day(2026, 1, 1)
	p := &domain.Policy{
		Status:      domain.StatusActive,
		StartDate:   day(2026, 1, 1),
		EndDate:     day(2026, 3, 31),
		ActivatedAt: &activated,
	}

	t.Run("end date inside the window", func(t *testing.T) {
		assert.True(t, p.ExpiresWithin(day(2026, 3, 15), 30))
	})

	t.Run("end date exactly on the window edge", func(t *testing.T) {
		assert.True(t, p.ExpiresWithin(day(2026, 3, 1), 30))
	})

	t.Run("end date beyond the window", func(t *testing.T) {
		assert.False(t, p.ExpiresWithin(day(2026, 1, 15), 30))
	})

	t.Run("record not in force never expires within", func(t *testing.T) {
		assert.False(t, p.ExpiresWithin(day(2026, 4, 1), 30))
	})
}

func TestValidPolicyCancellationReason(t *testing.T) {
	for _, reason := range []string{
		domain.PolicyCancelCustomerRequest,
		domain.PolicyCancelNonPayment,
		domain.PolicyCancelVehicleSold,
		domain.PolicyCancelDuplicate,
		domain.PolicyCancelDataError,
		domain.PolicyCancelOther,
	} {
		assert.True(t, domain.ValidPolicyCancellationReason(reason), reason)
	}

	// Permit-only reasons do not leak into the policy set.
	assert.False(t, domain.ValidPolicyCancellationReason(domain.PermitCancelExpiredEarly))
	assert.False(t, domain.ValidPolicyCancellationReason("changed_my_mind"))
	assert.False(t, domain.ValidPolicyCancellationReason(""))
}

func TestFormatPolicyNumber(t *testing.T) {
	tests := []struct {
		year int
		slug string
		seq  int
		want string
	}{
		{2026, "acme-insurance", 1, "POL-2026-ACMEINSURANCE-00001"},
		{2026, "acme-insurance", 123, "POL-2026-ACMEINSURANCE-00123"},
		{2027, "fleet9", 99999, "POL-2027-FLEET9-99999"},
		{2026, "Mixed-Case", 7, "POL-2026-MIXEDCASE-00007"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.FormatPolicyNumber(tt.year, tt.slug, tt.seq))
	}
}

func TestDateOnly(t *testing.T) {
	t.Run("truncates to midnight UTC", func(t *testing.T) {
		got := domain.DateOnly(time.Date(2026, 8, 24, 15, 42, 7, 999, time.UTC))
		assert.Equal(t, day(2026, 8, 24), got)
	})

	t.Run("converts zone before truncating", func(t *testing.T) {
		eat := time.FixedZone("EAT", 3*3600)
		// 01:30 in Dar es Salaam is still the previous day in UTC.
		got := domain.DateOnly(time.Date(2026, 8, 24, 1, 30, 0, 0, eat))
		assert.Equal(t, day(2026, 8, 23), got)
	})
}
