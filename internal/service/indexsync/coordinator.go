package indexsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrIndexStale is returned by Sync when every push attempt failed.
var ErrIndexStale = errors.New("search index is stale")

// Indexer publishes a unit's availability snapshot to the search side.
type Indexer interface {
	PushAvailability(ctx context.Context, snap *domain.AvailabilitySnapshot) error
}

type SnapshotSource interface {
	Horizon(ctx context.Context, unitID int64, months int) (*domain.AvailabilitySnapshot, error)
}

type UnitLister interface {
	ListUnits(ctx context.Context) ([]int64, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, unitID int64) error
}

type Coordinator struct {
	snapshots SnapshotSource
	indexer   Indexer
	outbox    repository.OutboxRepository
	units     UnitLister
	cache     CacheInvalidator
	breaker   *gobreaker.CircuitBreaker
	policy    BackoffPolicy
	horizon   int
	workers   int
	log       logrus.FieldLogger
	tracer    trace.Tracer
	sleep     func(ctx context.Context, d time.Duration) error

	queue   chan int64
	mu      sync.Mutex
	pending map[int64]struct{}
	wg      sync.WaitGroup
}

type Option func(*Coordinator)

func WithPolicy(p BackoffPolicy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

func WithHorizonMonths(months int) Option {
	return func(c *Coordinator) {
		c.horizon = months
	}
}

// WithWorkers sets the number of background workers and the queue capacity.
func WithWorkers(workers, queueSize int) Option {
	return func(c *Coordinator) {
		c.workers = workers
		c.queue = make(chan int64, queueSize)
	}
}

func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Coordinator) {
		c.breaker = cb
	}
}

func WithCache(inv CacheInvalidator) Option {
	return func(c *Coordinator) {
		c.cache = inv
	}
}

func WithUnitLister(l UnitLister) Option {
	return func(c *Coordinator) {
		c.units = l
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		c.sleep = fn
	}
}

func NewCoordinator(snapshots SnapshotSource, indexer Indexer, outbox repository.OutboxRepository, opts ...Option) *Coordinator {
	c := &Coordinator{
		snapshots: snapshots,
		indexer:   indexer,
		outbox:    outbox,
		policy:    LinearBackoff{Step: time.Second, Attempts: 3},
		horizon:   6,
		workers:   2,
		log:       logrus.StandardLogger(),
		tracer:    otel.Tracer("indexsync"),
		sleep:     sleepContext,
		queue:     make(chan int64, 256),
		pending:   make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = CircuitBreaker("search-index", 5, 30*time.Second, c.log)
	}
	return c
}

// CircuitBreaker opens after failures consecutive failed pushes and probes again after openFor.
func CircuitBreaker(name string, failures uint32, openFor time.Duration, log logrus.FieldLogger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
}

// Start runs the workers until ctx is done. Wait blocks until they have exited.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.work(ctx)
		}()
	}
}

func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case unitID := <-c.queue:
			c.mu.Lock()
			delete(c.pending, unitID)
			c.mu.Unlock()
			// the outcome is logged by Sync; the outbox keeps failures for Reconcile
			_ = c.Sync(ctx, unitID)
		}
	}
}

// OnAvailabilityChanged queues a resync of the unit and returns at once. A unit that is already
// queued is not queued twice. When the queue is full the event is dropped: the outbox row written
// with the change still carries it.
func (c *Coordinator) OnAvailabilityChanged(_ context.Context, unitID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[unitID]; ok {
		return
	}
	select {
	case c.queue <- unitID:
		c.pending[unitID] = struct{}{}
	default:
		c.log.WithField("unit_id", unitID).Warn("index sync queue full, leaving unit to the outbox relay")
	}
}

// Sync pushes a fresh horizon snapshot of the unit, retrying per the backoff policy.
// On success only the outbox entries that were committed before the snapshot was read are
// settled; anything written meanwhile stays pending for Reconcile.
func (c *Coordinator) Sync(ctx context.Context, unitID int64) error {
	ctx, span := c.tracer.Start(ctx, "IndexSync.Sync")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", unitID))

	pending, err := c.outbox.PendingIDs(ctx, unitID)
	if err != nil {
		c.log.WithError(err).WithField("unit_id", unitID).Warn("list pending outbox entries")
	}

	attempts := c.policy.MaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.push(ctx, unitID)
		if lastErr == nil {
			c.settle(ctx, unitID, pending)
			c.log.WithFields(logrus.Fields{"unit_id": unitID, "attempt": attempt}).Debug("availability pushed to index")
			return nil
		}

		c.log.WithError(lastErr).WithFields(logrus.Fields{"unit_id": unitID, "attempt": attempt}).Warn("availability push failed")
		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, c.policy.Delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	c.log.WithError(lastErr).WithFields(logrus.Fields{
		"unit_id":              unitID,
		"attempts":             attempts,
		"consistency_critical": true,
	}).Error("search index is stale for unit; outbox entry kept for reconciliation")
	return fmt.Errorf("unit %d: %w: %v", unitID, ErrIndexStale, lastErr)
}

func (c *Coordinator) push(ctx context.Context, unitID int64) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		snap, err := c.snapshots.Horizon(ctx, unitID, c.horizon)
		if err != nil {
			return nil, err
		}
		return nil, c.indexer.PushAvailability(ctx, snap)
	})
	return err
}

func (c *Coordinator) settle(ctx context.Context, unitID int64, ids []string) {
	if err := c.outbox.MarkProcessed(ctx, ids); err != nil {
		c.log.WithError(err).WithField("unit_id", unitID).Warn("mark outbox processed")
	}
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, unitID); err != nil {
			c.log.WithError(err).WithField("unit_id", unitID).Warn("invalidate availability cache")
		}
	}
}

// Reconcile claims pending outbox entries and syncs each unit once. It returns the number of
// units brought up to date.
func (c *Coordinator) Reconcile(ctx context.Context, limit int, lease time.Duration) (int, error) {
	ctx, span := c.tracer.Start(ctx, "IndexSync.Reconcile")
	defer span.End()

	entries, err := c.outbox.ClaimPending(ctx, limit, lease)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	byUnit := make(map[int64][]domain.OutboxEntry)
	order := make([]int64, 0)
	for _, e := range entries {
		if _, ok := byUnit[e.UnitID]; !ok {
			order = append(order, e.UnitID)
		}
		byUnit[e.UnitID] = append(byUnit[e.UnitID], e)
	}

	synced := 0
	for _, unitID := range order {
		if err := c.Sync(ctx, unitID); err != nil {
			for _, e := range byUnit[unitID] {
				if markErr := c.outbox.MarkFailed(ctx, e.ID, err); markErr != nil {
					c.log.WithError(markErr).WithField("outbox_id", e.ID).Warn("mark outbox failed")
				}
			}
			continue
		}
		synced++
	}
	span.SetAttributes(attribute.Int("entries", len(entries)), attribute.Int("synced", synced))
	return synced, nil
}

// Rebuild syncs the given units, or every known unit when none are given.
func (c *Coordinator) Rebuild(ctx context.Context, unitIDs []int64) error {
	ctx, span := c.tracer.Start(ctx, "IndexSync.Rebuild")
	defer span.End()

	if len(unitIDs) == 0 {
		if c.units == nil {
			return errors.New("no units given and no unit lister configured")
		}
		var err error
		if unitIDs, err = c.units.ListUnits(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	var errs []error
	for _, unitID := range unitIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.Sync(ctx, unitID); err != nil {
			errs = append(errs, err)
		}
	}
	c.log.WithFields(logrus.Fields{"units": len(unitIDs), "failed": len(errs)}).Info("index rebuild finished")
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
