package repository

import (
	"context"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/audit/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// AuditRepository persists audit entries. The table is append-only: this
// type deliberately exposes no update or delete.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit entry. Runs inside the caller's transaction when
// one is open, so the entry commits with the mutation it describes.
func (r *AuditRepository) Insert(ctx context.Context, e *domain.Entry) error {
	query := `
		INSERT INTO audit_entries (tenant_id, actor_id, entity_kind, entity_id, action, outcome, before, after, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, at_ts`

	err := r.db.QueryRowx(ctx, query,
		e.TenantID, e.ActorID, e.EntityKind, e.EntityID,
		e.Action, e.Outcome, e.Before, e.After, e.Reason,
	).Scan(&e.ID, &e.At)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityKind, entityID string, limit, offset int) ([]domain.Entry, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `
		SELECT COUNT(*) FROM audit_entries
		WHERE tenant_id = $1 AND entity_kind = $2 AND entity_id = $3`
	if err := r.db.Get(ctx, &total, countQuery, tenantID, entityKind, entityID); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	entries := []domain.Entry{}
	query := `
		SELECT id, tenant_id, actor_id, at_ts, entity_kind, entity_id, action, outcome, before, after, reason
		FROM audit_entries
		WHERE tenant_id = $1 AND entity_kind = $2 AND entity_id = $3
		ORDER BY at_ts ASC
		LIMIT $4 OFFSET $5`
	if err := r.db.Select(ctx, &entries, query, tenantID, entityKind, entityID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return entries, total, nil
}
