package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/audit/domain"
	"github.com/bimatrack/bimatrack-backend/internal/audit/repository"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// Recorder writes audit entries and history snapshots. Services call it
// inside the same transaction as the mutation, so a failed mutation leaves
// no applied audit entry behind.
type Recorder struct {
	audit   *repository.AuditRepository
	history *repository.HistoryRepository
	logger  *logger.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(audit *repository.AuditRepository, history *repository.HistoryRepository, log *logger.Logger) *Recorder {
	return &Recorder{
		audit:   audit,
		history: history,
		logger:  log.WithComponent("audit"),
	}
}

// Record appends an applied audit entry for a mutation.
func (r *Recorder) Record(ctx context.Context, entityKind, entityID, action string, before, after any) error {
	return r.record(ctx, entityKind, entityID, action, domain.OutcomeApplied, before, after, "")
}

// RecordRejected appends a rejected entry. Used when a guard blocks an
// attempted transition; the reason names the guard that fired.
func (r *Recorder) RecordRejected(ctx context.Context, entityKind, entityID, action, reason string) error {
	return r.record(ctx, entityKind, entityID, action, domain.OutcomeRejected, nil, nil, reason)
}

// RecordSecurityEvent appends a security event, e.g. a super admin
// attempting a tenant business write.
func (r *Recorder) RecordSecurityEvent(ctx context.Context, entityKind, entityID, reason string) error {
	return r.record(ctx, entityKind, entityID, domain.ActionSecurityEvent, domain.OutcomeRejected, nil, nil, reason)
}

func (r *Recorder) record(ctx context.Context, entityKind, entityID, action, outcome string, before, after any, reason string) error {
	if entityID == "" {
		// Denials can target an entity that was never resolved.
		entityID = "00000000-0000-0000-0000-000000000000"
	}

	entry := &domain.Entry{
		ActorID:    actingID(ctx),
		EntityKind: entityKind,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		Reason:     reason,
	}

	// Platform-level operations run without a bound tenant.
	if tenantID, err := tenant.IDFromContext(ctx); err == nil {
		entry.TenantID = &tenantID
	}

	var err error
	if entry.Before, err = marshalState(before); err != nil {
		return err
	}
	if entry.After, err = marshalState(after); err != nil {
		return err
	}

	return r.audit.Insert(ctx, entry)
}

// Snapshot appends the next history version for an entity.
func (r *Recorder) Snapshot(ctx context.Context, entityKind, entityID string, entity any) error {
	rec, err := r.history.InsertSnapshot(ctx, entityKind, entityID, entity)
	if err != nil {
		return err
	}

	r.logger.Debug().
		Str("entity_kind", entityKind).
		Str("entity_id", entityID).
		Int("version", rec.Version).
		Msg("history snapshot recorded")
	return nil
}

// ListTrail returns the audit trail for one entity.
func (r *Recorder) ListTrail(ctx context.Context, entityKind, entityID string, limit, offset int) ([]domain.Entry, int64, error) {
	return r.audit.ListByEntity(ctx, entityKind, entityID, limit, offset)
}

// ListHistory returns all history versions for one entity.
func (r *Recorder) ListHistory(ctx context.Context, entityKind, entityID string) ([]domain.HistoryRecord, error) {
	return r.history.ListByEntity(ctx, entityKind, entityID)
}

func actingID(ctx context.Context) string {
	if act := actor.FromContext(ctx); act != nil {
		return act.ID
	}
	return actor.SystemActor().ID
}

func marshalState(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit state: %w", err)
	}
	return body, nil
}
