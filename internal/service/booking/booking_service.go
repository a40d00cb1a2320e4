package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/staybooking/internal/cache"
	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/kafka"
	"github.com/Domenick1991/staybooking/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const actor = "booking-service"

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id string) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

type ConflictChecker interface {
	CheckConflicts(ctx context.Context, unitID int64, r domain.DateRange, excludeBookingID *string) (*domain.ConflictCheck, error)
}

type ChangeNotifier interface {
	OnAvailabilityChanged(ctx context.Context, unitID int64)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	conflicts          ConflictChecker
	locker             cache.UnitLocker
	producer           Producer
	notifier           ChangeNotifier
	bookingTopic       string
	notificationsTopic string
	holdTTL            time.Duration
	validate           *validator.Validate
	log                logrus.FieldLogger
	now                func() time.Time
}

type CreateBookingInput struct {
	UnitID     int64     `json:"unit_id" validate:"gt=0"`
	CheckIn    time.Time `json:"check_in" validate:"required"`
	CheckOut   time.Time `json:"check_out" validate:"required"`
	GuestEmail string    `json:"guest_email" validate:"required,email"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithNotifier(n ChangeNotifier) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
	}
}

func WithLogger(l logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = l
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	conflicts ConflictChecker,
	locker cache.UnitLocker,
	producer Producer,
	bookingTopic string,
	holdTTL time.Duration,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		conflicts:    conflicts,
		locker:       locker,
		producer:     producer,
		bookingTopic: bookingTopic,
		holdTTL:      holdTTL,
		validate:     validator.New(),
		log:          logrus.StandardLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.locker == nil {
		service.locker = cache.NewLocalLocker()
	}
	return service
}

// CreateBooking holds the requested days for a new PENDING booking. The conflict check and the write
// run under the unit lock; the write itself only claims days that are still Available.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	r := domain.NewDateRange(input.CheckIn, input.CheckOut)
	if err := r.Validate(); err != nil {
		return nil, err
	}

	booking, err := s.holdDays(ctx, input, r)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": booking.ID, "unit_id": booking.UnitID}).Info("booking created")
	if err := s.publish(ctx, "booking_created", booking); err != nil {
		s.log.WithError(err).WithField("booking_id", booking.ID).Warn("failed to publish booking_created event")
	}
	s.changed(ctx, booking.UnitID)
	return booking, nil
}

// holdDays checks and writes the booking while holding the unit lock.
func (s *BookingService) holdDays(ctx context.Context, input CreateBookingInput, r domain.DateRange) (*domain.Booking, error) {
	unlock, err := s.locker.Lock(ctx, input.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	check, err := s.conflicts.CheckConflicts(ctx, input.UnitID, r, nil)
	if err != nil {
		return nil, err
	}
	if check.HasConflicts {
		return nil, &domain.ConflictError{Check: check}
	}

	booking := &domain.Booking{
		ID:         uuid.NewString(),
		UnitID:     input.UnitID,
		CheckIn:    r.Start,
		CheckOut:   r.End,
		Status:     domain.BookingStatusPending,
		GuestEmail: input.GuestEmail,
		ExpiresAt:  s.now().Add(s.holdTTL),
	}
	if err := s.bookings.CreateWithSchedule(ctx, booking, actor); err != nil {
		if errors.Is(err, domain.ErrDayUnavailable) {
			// a writer outside the lock got there first; report what it left behind
			if check, cerr := s.conflicts.CheckConflicts(ctx, input.UnitID, r, nil); cerr == nil && check.HasConflicts {
				return nil, &domain.ConflictError{Check: check, Cause: err}
			}
		}
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) ConfirmBooking(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusPending {
		return nil, domain.ErrBookingNotPending
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, "booking_confirmed", updated); err != nil {
		s.log.WithError(err).WithField("booking_id", updated.ID).Warn("failed to publish booking_confirmed event")
	}
	return updated, nil
}

// CancelBooking frees exactly the days the booking holds. Cancelling an inactive booking is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return current, nil
	}

	updated, released, err := s.release(ctx, current, domain.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !released {
		return updated, nil
	}
	if err := s.publish(ctx, "booking_cancelled", updated); err != nil {
		s.log.WithError(err).WithField("booking_id", updated.ID).Warn("failed to publish booking_cancelled event")
	}
	s.changed(ctx, updated.UnitID)
	return updated, nil
}

// ExpirePendingBookings moves PENDING holds past their deadline to EXPIRED and frees their days.
// A failure on one booking does not stop the sweep.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	due, err := s.bookings.ListExpiredPending(ctx, s.now())
	if err != nil {
		return nil, err
	}

	expired := make([]domain.Booking, 0, len(due))
	units := make(map[int64]struct{})
	for i := range due {
		b := due[i]
		updated, released, err := s.release(ctx, &b, domain.BookingStatusExpired)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Error("failed to expire booking")
			continue
		}
		if !released {
			continue
		}
		expired = append(expired, *updated)
		units[updated.UnitID] = struct{}{}
		_ = s.publish(ctx, "booking_expired", updated)
	}
	for unitID := range units {
		s.changed(ctx, unitID)
	}
	if len(expired) > 0 {
		s.log.WithField("count", len(expired)).Info("expired pending bookings")
	}
	return expired, nil
}

// release reports false when another request moved the booking out of the active states first.
func (s *BookingService) release(ctx context.Context, b *domain.Booking, status domain.BookingStatus) (*domain.Booking, bool, error) {
	unlock, err := s.locker.Lock(ctx, b.UnitID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	updated, records, err := s.bookings.CancelWithSchedule(ctx, b.ID, status, actor)
	if err != nil {
		return nil, false, err
	}
	if updated.Status != status {
		return updated, false, nil
	}
	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"unit_id":    b.UnitID,
		"status":     status,
		"days":       len(records),
	}).Info("booking days released")
	return updated, true, nil
}

func (s *BookingService) changed(ctx context.Context, unitID int64) {
	if s.notifier != nil {
		s.notifier.OnAvailabilityChanged(ctx, unitID)
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) error {
	if s.producer == nil || s.bookingTopic == "" {
		return nil
	}
	event := kafka.NewBookingEvent(eventType, booking)
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.ID, event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, booking.ID, event)
	}
	return nil
}

var _ BookingUseCase = (*BookingService)(nil)
