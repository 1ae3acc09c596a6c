package memstore

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (t *tx) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) (models.AuditLog, error) {
	a := models.AuditLog{
		EntityType: arg.EntityType,
		EntityID:   arg.EntityID,
		ActorID:    arg.ActorID,
		Action:     arg.Action,
		PrevState:  arg.PrevState,
		NextState:  arg.NextState,
		Metadata:   append([]byte(nil), arg.Metadata...),
		CreatedAt:  t.s.now(),
	}
	t.audit = append(t.audit, a)
	return a, nil
}

func (t *tx) ListAuditLogByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	t.s.mu.RLock()
	all := append([]models.AuditLog(nil), t.s.audit...)
	t.s.mu.RUnlock()
	all = append(all, t.audit...)

	out := []models.AuditLog{}
	for _, a := range all {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) idempotencyRecord(key string) (repository.IdempotencyKey, bool) {
	if rec, ok := t.idempotency[key]; ok {
		return rec, true
	}
	if _, deleted := t.idemDeleted[key]; deleted {
		return repository.IdempotencyKey{}, false
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.idempotency[key]
	return rec, ok
}

func (t *tx) ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	if err := t.lock(ctx, idempotencyKey(arg.IdempotencyKey)); err != nil {
		return repository.IdempotencyKey{}, err
	}
	if _, exists := t.idempotencyRecord(arg.IdempotencyKey); exists {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	now := t.s.now()
	rec := repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		ContentType:    "application/json",
		InProgress:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	delete(t.idemDeleted, arg.IdempotencyKey)
	t.idempotency[rec.IdempotencyKey] = rec
	return rec, nil
}

func (t *tx) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	rec, ok := t.idempotencyRecord(key)
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (t *tx) FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	if err := t.lock(ctx, idempotencyKey(arg.IdempotencyKey)); err != nil {
		return repository.IdempotencyKey{}, err
	}
	rec, ok := t.idempotencyRecord(arg.IdempotencyKey)
	if !ok || rec.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	rec.ResponseStatus = arg.ResponseStatus
	rec.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	rec.ContentType = arg.ContentType
	rec.InProgress = false
	rec.UpdatedAt = t.s.now()
	t.idempotency[rec.IdempotencyKey] = rec
	return rec, nil
}

func (t *tx) DeleteIdempotencyKey(ctx context.Context, key string) error {
	if err := t.lock(ctx, idempotencyKey(key)); err != nil {
		return err
	}
	rec, ok := t.idempotencyRecord(key)
	if !ok || !rec.InProgress {
		return nil
	}
	delete(t.idempotency, key)
	t.idemDeleted[key] = struct{}{}
	return nil
}
