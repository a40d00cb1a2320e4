package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository persists reindex obligations so a crash or a long index outage cannot lose them.
type OutboxRepository interface {
	Enqueue(ctx context.Context, unitID int64, reason string) error
	// ClaimPending leases up to limit unprocessed entries for lease; other workers skip leased rows.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxEntry, error)
	// PendingIDs lists the unit's unsettled entries committed so far.
	PendingIDs(ctx context.Context, unitID int64) ([]string, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

type PGOutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) OutboxRepository {
	return &PGOutboxRepository{db: db}
}

func (r *PGOutboxRepository) Enqueue(ctx context.Context, unitID int64, reason string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO availability_outbox (id, unit_id, reason) VALUES ($1, $2, $3)`,
		uuid.NewString(), unitID, reason)
	return err
}

func (r *PGOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxEntry, error) {
	rows, err := r.db.Query(ctx, `UPDATE availability_outbox
		SET claimed_until = now() + make_interval(secs => $2), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM availability_outbox
			WHERE processed_at IS NULL AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text, unit_id, reason, attempts, COALESCE(last_error, ''), created_at, processed_at`,
		limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.OutboxEntry, 0)
	for rows.Next() {
		var e domain.OutboxEntry
		if err := rows.Scan(&e.ID, &e.UnitID, &e.Reason, &e.Attempts, &e.LastError, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PGOutboxRepository) PendingIDs(ctx context.Context, unitID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id::text FROM availability_outbox
		WHERE unit_id=$1 AND processed_at IS NULL ORDER BY created_at`, unitID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGOutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE availability_outbox SET processed_at=now(), claimed_until=NULL
		WHERE id = ANY($1::uuid[]) AND processed_at IS NULL`, ids)
	return err
}

func (r *PGOutboxRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.Exec(ctx, `UPDATE availability_outbox SET last_error=$2, claimed_until=NULL WHERE id=$1`, id, msg)
	return err
}

func enqueueOutbox(ctx context.Context, tx pgx.Tx, unitID int64, reason string) error {
	_, err := tx.Exec(ctx, `INSERT INTO availability_outbox (id, unit_id, reason) VALUES ($1, $2, $3)`,
		uuid.NewString(), unitID, reason)
	return err
}

var _ OutboxRepository = (*PGOutboxRepository)(nil)
