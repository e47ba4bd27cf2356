package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/audit/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// HistoryRepository persists full entity snapshots. Append-only.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// InsertSnapshot appends the next version for an entity. The version is
// assigned inside the statement so concurrent writers in separate
// transactions collide on uq_history_version instead of silently skipping
// numbers.
func (r *HistoryRepository) InsertSnapshot(ctx context.Context, entityKind, entityID string, snapshot any) (*domain.HistoryRecord, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	rec := &domain.HistoryRecord{
		TenantID:   tenantID,
		EntityKind: entityKind,
		EntityID:   entityID,
		Snapshot:   body,
	}

	query := `
		INSERT INTO history_records (tenant_id, entity_kind, entity_id, version, snapshot)
		SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4
		FROM history_records
		WHERE tenant_id = $1 AND entity_kind = $2 AND entity_id = $3
		RETURNING id, version, recorded_at`

	err = r.db.QueryRowx(ctx, query, tenantID, entityKind, entityID, body).
		Scan(&rec.ID, &rec.Version, &rec.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert history snapshot: %w", err)
	}

	return rec, nil
}

// ListByEntity returns all snapshots for an entity, oldest version first.
func (r *HistoryRepository) ListByEntity(ctx context.Context, entityKind, entityID string) ([]domain.HistoryRecord, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	records := []domain.HistoryRecord{}
	query := `
		SELECT id, tenant_id, entity_kind, entity_id, version, snapshot, recorded_at
		FROM history_records
		WHERE tenant_id = $1 AND entity_kind = $2 AND entity_id = $3
		ORDER BY version ASC`
	if err := r.db.Select(ctx, &records, query, tenantID, entityKind, entityID); err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}

	return records, nil
}
