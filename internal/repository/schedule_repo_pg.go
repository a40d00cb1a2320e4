package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScheduleRepository interface {
	ListByUnitRange(ctx context.Context, unitID int64, r domain.DateRange) ([]domain.ScheduleRecord, error)
	ListByBooking(ctx context.Context, bookingID string) ([]domain.ScheduleRecord, error)
	AvailableDays(ctx context.Context, unitID int64, r domain.DateRange) ([]time.Time, error)
	// BulkUpdate rewrites existing records, conditioned on each record's Version.
	// A non-empty outboxReason enqueues a reindex obligation in the same transaction.
	BulkUpdate(ctx context.Context, records []domain.ScheduleRecord, outboxReason string) error
	// Upsert is BulkUpdate that also inserts records with Version 0.
	Upsert(ctx context.Context, records []domain.ScheduleRecord, outboxReason string) error
	ListUnits(ctx context.Context) ([]int64, error)
}

type PGScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) ScheduleRepository {
	return &PGScheduleRepository{db: db}
}

const scheduleColumns = `unit_id, day, status, reason, notes, booking_id::text, deleted, version, created_at, updated_at, updated_by`

func (r *PGScheduleRepository) ListByUnitRange(ctx context.Context, unitID int64, dr domain.DateRange) ([]domain.ScheduleRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM unit_schedule
		WHERE unit_id=$1 AND day >= $2 AND day < $3 AND NOT deleted ORDER BY day`, unitID, dr.Start, dr.End)
	if err != nil {
		return nil, err
	}
	return collectSchedule(rows)
}

func (r *PGScheduleRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.ScheduleRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+scheduleColumns+` FROM unit_schedule
		WHERE booking_id=$1 AND NOT deleted ORDER BY day`, bookingID)
	if err != nil {
		return nil, err
	}
	return collectSchedule(rows)
}

func (r *PGScheduleRepository) AvailableDays(ctx context.Context, unitID int64, dr domain.DateRange) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `SELECT d::date FROM generate_series($2::date, $3::date - 1, interval '1 day') AS d
		WHERE NOT EXISTS (
			SELECT 1 FROM unit_schedule s
			WHERE s.unit_id=$1 AND s.day=d::date AND NOT s.deleted AND s.status <> 'Available'
		) ORDER BY d`, unitID, dr.Start, dr.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, domain.Normalize(d))
	}
	return days, rows.Err()
}

func (r *PGScheduleRepository) BulkUpdate(ctx context.Context, records []domain.ScheduleRecord, outboxReason string) error {
	return r.write(ctx, records, outboxReason, false)
}

func (r *PGScheduleRepository) Upsert(ctx context.Context, records []domain.ScheduleRecord, outboxReason string) error {
	return r.write(ctx, records, outboxReason, true)
}

func (r *PGScheduleRepository) write(ctx context.Context, records []domain.ScheduleRecord, outboxReason string, allowInsert bool) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	units := make(map[int64]struct{})
	for _, rec := range records {
		if !rec.Status.Valid() {
			return fmt.Errorf("record %d/%s: %w", rec.UnitID, rec.Date.Format(time.DateOnly), domain.ErrInvalidStatus)
		}
		var cmd pgconn.CommandTag
		if rec.Version == 0 && allowInsert {
			cmd, err = tx.Exec(ctx, `INSERT INTO unit_schedule (unit_id, day, status, reason, notes, booking_id, updated_by)
				VALUES ($1, $2, $3, $4, $5, $6::uuid, $7)
				ON CONFLICT (unit_id, day) WHERE NOT deleted DO NOTHING`,
				rec.UnitID, rec.Date, rec.Status.String(), rec.Reason, rec.Notes, rec.BookingID, rec.UpdatedBy)
		} else {
			cmd, err = tx.Exec(ctx, `UPDATE unit_schedule
				SET status=$3, reason=$4, notes=$5, booking_id=$6::uuid, updated_by=$7, version=version+1, updated_at=now()
				WHERE unit_id=$1 AND day=$2 AND NOT deleted AND version=$8`,
				rec.UnitID, rec.Date, rec.Status.String(), rec.Reason, rec.Notes, rec.BookingID, rec.UpdatedBy, rec.Version)
		}
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("unit %d day %s: %w", rec.UnitID, rec.Date.Format(time.DateOnly), domain.ErrVersionConflict)
		}
		units[rec.UnitID] = struct{}{}
	}

	if outboxReason != "" {
		for unitID := range units {
			if err := enqueueOutbox(ctx, tx, unitID, outboxReason); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (r *PGScheduleRepository) ListUnits(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT unit_id FROM unit_schedule WHERE NOT deleted
		UNION SELECT unit_id FROM bookings ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		units = append(units, id)
	}
	return units, rows.Err()
}

func collectSchedule(rows pgx.Rows) ([]domain.ScheduleRecord, error) {
	defer rows.Close()

	records := make([]domain.ScheduleRecord, 0)
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanSchedule(row pgx.Row) (domain.ScheduleRecord, error) {
	var (
		rec    domain.ScheduleRecord
		status string
	)
	if err := row.Scan(&rec.UnitID, &rec.Date, &status, &rec.Reason, &rec.Notes, &rec.BookingID,
		&rec.Deleted, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.UpdatedBy); err != nil {
		return rec, err
	}
	parsed, err := domain.ParseDayStatus(status)
	if err != nil {
		return rec, err
	}
	rec.Status = parsed
	rec.Date = domain.Normalize(rec.Date)
	return rec, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ ScheduleRepository = (*PGScheduleRepository)(nil)
