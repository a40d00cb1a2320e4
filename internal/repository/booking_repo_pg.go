package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	ListActiveOverlapping(ctx context.Context, unitID int64, r domain.DateRange) ([]domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// CreateWithSchedule stores the booking and marks every day of its range Booked in one transaction.
	CreateWithSchedule(ctx context.Context, booking *domain.Booking, actor string) error
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error)
	// CancelWithSchedule moves an active booking to status and releases exactly the days it holds.
	// An already inactive booking is returned unchanged with no released records.
	CancelWithSchedule(ctx context.Context, id string, status domain.BookingStatus, actor string) (*domain.Booking, []domain.ScheduleRecord, error)
	ListExpiredPending(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id::text, unit_id, check_in, check_out, status, guest_email, expires_at, created_at, updated_at`

func (r *PGBookingRepository) ListActiveOverlapping(ctx context.Context, unitID int64, dr domain.DateRange) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE unit_id=$1 AND status NOT IN ($4, $5) AND check_in < $3 AND check_out > $2
		ORDER BY check_in, id`,
		unitID, dr.Start, dr.End, domain.BookingStatusCancelled, domain.BookingStatusExpired)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) CreateWithSchedule(ctx context.Context, booking *domain.Booking, actor string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, unit_id, check_in, check_out, status, guest_email, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		booking.ID, booking.UnitID, booking.CheckIn, booking.CheckOut, booking.Status, booking.GuestEmail, booking.ExpiresAt).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return err
	}

	// Only Available or missing days may be claimed; anything else aborts the whole booking.
	cmd, err := tx.Exec(ctx, `INSERT INTO unit_schedule (unit_id, day, status, booking_id, updated_by)
		SELECT $1, d::date, 'Booked', $2::uuid, $5 FROM generate_series($3::date, $4::date - 1, interval '1 day') AS d
		ON CONFLICT (unit_id, day) WHERE NOT deleted DO UPDATE
		SET status=EXCLUDED.status, booking_id=EXCLUDED.booking_id, reason=NULL, notes=NULL,
			version=unit_schedule.version+1, updated_at=now(), updated_by=EXCLUDED.updated_by
		WHERE unit_schedule.status = 'Available'`,
		booking.UnitID, booking.ID, booking.CheckIn, booking.CheckOut, actor)
	if err != nil {
		return err
	}
	if want := booking.Range().Days(); cmd.RowsAffected() != int64(want) {
		return fmt.Errorf("booking %s claimed %d of %d days: %w", booking.ID, cmd.RowsAffected(), want, domain.ErrDayUnavailable)
	}

	if err := enqueueOutbox(ctx, tx, booking.UnitID, "booking_created"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2
		RETURNING `+bookingColumns, status, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGBookingRepository) CancelWithSchedule(ctx context.Context, id string, status domain.BookingStatus, actor string) (*domain.Booking, []domain.ScheduleRecord, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	b, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE id=$2 AND status NOT IN ($3, $4)
		RETURNING `+bookingColumns, status, id, domain.BookingStatusCancelled, domain.BookingStatusExpired))
	if err != nil {
		if !isNoRows(err) {
			return nil, nil, err
		}
		current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
		if err != nil {
			if isNoRows(err) {
				return nil, nil, domain.ErrNotFound
			}
			return nil, nil, err
		}
		return &current, nil, nil
	}

	rows, err := tx.Query(ctx, `UPDATE unit_schedule
		SET status='Available', reason=NULL, notes=NULL, booking_id=NULL,
			version=version+1, updated_at=now(), updated_by=$2
		WHERE booking_id=$1 AND NOT deleted
		RETURNING `+scheduleColumns, id, actor)
	if err != nil {
		return nil, nil, err
	}
	released, err := collectSchedule(rows)
	if err != nil {
		return nil, nil, err
	}

	if err := enqueueOutbox(ctx, tx, b.UnitID, "booking_"+strings.ToLower(string(status))); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return &b, released, nil
}

func (r *PGBookingRepository) ListExpiredPending(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND expires_at <= $2 ORDER BY expires_at`, domain.BookingStatusPending, deadline)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.UnitID, &b.CheckIn, &b.CheckOut, &b.Status, &b.GuestEmail, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.CheckIn = domain.Normalize(b.CheckIn)
	b.CheckOut = domain.Normalize(b.CheckOut)
	return b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
