package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/cache"
	"github.com/Domenick1991/staybooking/internal/kafka"
	"github.com/Domenick1991/staybooking/internal/rabbitmq"
	"github.com/Domenick1991/staybooking/internal/repository"
	"github.com/Domenick1991/staybooking/internal/search"
	"github.com/Domenick1991/staybooking/internal/service/booking"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/Domenick1991/staybooking/internal/service/indexsync"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Components is the wired availability core shared by every process.
type Components struct {
	Schedule    repository.ScheduleRepository
	Bookings    repository.BookingRepository
	Outbox      repository.OutboxRepository
	Calendar    *calendar.CalendarService
	Coordinator *indexsync.Coordinator
	Booking     *booking.BookingService
	Producer    *kafka.Producer

	closers []func() error
}

// Wire connects to Postgres, Redis and the configured index transport and builds the services.
func Wire(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, tracer trace.Tracer) (*Components, error) {
	c := &Components{}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	c.Schedule = repository.NewScheduleRepository(pool)
	c.Bookings = repository.NewBookingRepository(pool)
	c.Outbox = repository.NewOutboxRepository(pool)

	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		redisCache = cache.NewRedisCache(cfg.Redis)
		if err := redisCache.Ping(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, redisCache.Close)
	}

	var locker cache.UnitLocker = cache.NewLocalLocker()
	if redisCache != nil {
		locker = cache.NewRedisLocker(redisCache, cfg.Booking.LockTTL(), log)
	} else {
		log.Warn("redis is not configured, unit locks are process-local")
	}

	var shared cache.SharedStore
	switch cfg.Cache.Shared {
	case config.SharedCacheRedis:
		if redisCache != nil {
			shared = redisCache
		}
	case config.SharedCacheMemcached:
		shared = cache.NewMemcachedStore(cfg.Cache.MemcachedAddrs...)
	}
	snapshots := cache.NewSnapshotCache(shared, cfg.Cache.LocalMaxSize, cfg.Cache.LocalTTL(), cfg.Cache.SharedTTL(), log)

	c.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
	c.closers = append(c.closers, c.Producer.Close)

	indexer, closeIndexer, err := NewIndexer(cfg, c.Producer, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	if closeIndexer != nil {
		c.closers = append(c.closers, closeIndexer)
	}

	c.Calendar = calendar.NewCalendarService(c.Schedule, c.Bookings,
		calendar.WithLocker(locker),
		calendar.WithSnapshotCache(snapshots),
		calendar.WithTracer(tracer),
		calendar.WithLogger(log),
		calendar.WithAlternativeWindow(cfg.Alternatives.MaxDaysBefore, cfg.Alternatives.MaxDaysAfter),
	)
	c.Coordinator = indexsync.NewCoordinator(c.Calendar.Snapshots(), indexer, c.Outbox,
		indexsync.WithPolicy(indexsync.LinearBackoff{Step: cfg.Index.BackoffStep(), Attempts: cfg.Index.MaxAttempts}),
		indexsync.WithHorizonMonths(cfg.Index.HorizonMonths),
		indexsync.WithWorkers(cfg.Index.Workers, cfg.Index.QueueSize),
		indexsync.WithBreaker(indexsync.CircuitBreaker("availability-index", cfg.Index.BreakerFailures, cfg.Index.BreakerOpen(), log)),
		indexsync.WithCache(snapshots),
		indexsync.WithUnitLister(c.Schedule),
		indexsync.WithLogger(log),
		indexsync.WithTracer(tracer),
	)
	c.Calendar.SetNotifier(c.Coordinator)

	c.Booking = booking.NewBookingService(
		c.Bookings,
		c.Calendar,
		locker,
		c.Producer,
		cfg.Kafka.BookingEventsTopic,
		cfg.Booking.HoldTTL(),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithNotifier(c.Calendar),
		booking.WithLogger(log),
	)
	return c, nil
}

// NewIndexer picks the snapshot transport named by index.transport.
func NewIndexer(cfg *config.Config, producer *kafka.Producer, log logrus.FieldLogger) (indexsync.Indexer, func() error, error) {
	switch cfg.Index.Transport {
	case config.TransportKafka:
		return kafka.NewSnapshotPublisher(producer, cfg.Kafka.AvailabilityTopic), nil, nil
	case config.TransportRabbitMQ:
		q, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return q, q.Close, nil
	case config.TransportSolr:
		return NewSolrIndex(cfg), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown index transport %q", cfg.Index.Transport)
}

func NewSolrIndex(cfg *config.Config) *search.SolrIndex {
	return search.NewSolrIndex(cfg.Solr.BaseURL, cfg.Solr.Collection, cfg.Solr.Timeout())
}

func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
