package repository

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const auditLogColumns = `id, entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at`

func scanAuditLog(row pgx.Row) (models.AuditLog, error) {
	var (
		a                 models.AuditLog
		entityID, actorID pgtype.UUID
	)
	err := row.Scan(&a.ID, &a.EntityType, &entityID, &actorID, &a.Action, &a.PrevState, &a.NextState, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return models.AuditLog{}, err
	}
	a.EntityID = FromPgUUID(entityID)
	a.ActorID = FromPgUUIDPtr(actorID)
	return a, nil
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + auditLogColumns

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (models.AuditLog, error) {
	row := q.db.QueryRow(ctx, insertAuditLog,
		arg.EntityType,
		ToPgUUID(arg.EntityID),
		ToPgUUIDPtr(arg.ActorID),
		arg.Action,
		arg.PrevState,
		arg.NextState,
		arg.Metadata,
	)
	return scanAuditLog(row)
}

const listAuditLogByEntity = `-- name: ListAuditLogByEntity :many
SELECT ` + auditLogColumns + `
FROM audit_log
WHERE entity_type = $1 AND entity_id = $2
ORDER BY id`

func (q *Queries) ListAuditLogByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogByEntity, entityType, ToPgUUID(entityID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.AuditLog{}
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
