package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasbank/settlement-core/internal/domain"
)

const auditColumns = `id, actor, action, entity_type, entity_id, description,
	outcome, error_detail, details, created_at`

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit record. The table is append-only.
func (r *AuditRepository) Insert(ctx context.Context, rec *domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_records (
			id, actor, action, entity_type, entity_id, description,
			outcome, error_detail, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Actor, rec.Action, rec.EntityType, rec.EntityID, rec.Description,
		rec.Outcome, rec.ErrorDetail, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByEntity: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		err := rows.Scan(
			&rec.ID, &rec.Actor, &rec.Action, &rec.EntityType, &rec.EntityID, &rec.Description,
			&rec.Outcome, &rec.ErrorDetail, &rec.Details, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ListByEntity: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByEntity: rows: %w", err)
	}
	return records, nil
}
