package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/bootstrap"
	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/email"
	"github.com/Domenick1991/staybooking/internal/kafka"
	"github.com/Domenick1991/staybooking/internal/logger"
	"github.com/Domenick1991/staybooking/internal/rabbitmq"
	"github.com/Domenick1991/staybooking/internal/search"
	"github.com/Domenick1991/staybooking/internal/tracing"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracing, err := tracing.Init(cfg.Tracing, "staybooking-worker")
	if err != nil {
		log.WithError(err).Fatal("init tracing")
	}
	defer shutdownTracing(context.Background())

	components, err := bootstrap.Wire(ctx, cfg, log, tracer)
	if err != nil {
		log.WithError(err).Fatal("wire services")
	}
	defer components.Close()

	components.Coordinator.Start(ctx)
	defer components.Coordinator.Wait()

	index := bootstrap.NewSolrIndex(cfg)
	go consumeSnapshots(ctx, cfg, index, log)

	if cfg.Kafka.NotificationsTopic != "" {
		sender := email.NewSender(cfg.SMTP, log)
		notifications := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications", cfg.Kafka.NotificationsTopic)
		defer notifications.Close()
		go func() {
			if err := notifications.Consume(ctx, kafka.BookingEventHandler(func(ctx context.Context, event kafka.BookingEvent) error {
				if err := sender.Send(ctx, event); err != nil {
					log.WithError(err).Warn("guest notification failed")
				}
				return nil
			})); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("notification consumer stopped")
			}
		}()
	}

	expireTicker := time.NewTicker(cfg.Worker.ExpirationSweep())
	defer expireTicker.Stop()
	outboxTicker := time.NewTicker(cfg.Worker.OutboxPoll())
	defer outboxTicker.Stop()

	for {
		select {
		case <-expireTicker.C:
			if _, err := components.Booking.ExpirePendingBookings(ctx); err != nil {
				log.WithError(err).Error("expire bookings")
			}
		case <-outboxTicker.C:
			synced, err := components.Coordinator.Reconcile(ctx, cfg.Worker.OutboxBatchSize, cfg.Worker.OutboxLease())
			if err != nil {
				log.WithError(err).Error("reconcile outbox")
				continue
			}
			if synced > 0 {
				log.WithField("units", synced).Info("outbox reconciled")
			}
		case <-ctx.Done():
			log.Info("shutting down")
			return
		}
	}
}

// consumeSnapshots applies published snapshots to Solr. With the solr transport the coordinator
// writes to Solr directly and there is nothing to consume.
func consumeSnapshots(ctx context.Context, cfg *config.Config, index *search.SolrIndex, log logrus.FieldLogger) {
	apply := func(ctx context.Context, snap *domain.AvailabilitySnapshot) error {
		return index.PushAvailability(ctx, snap)
	}

	var consume func(ctx context.Context) error
	switch cfg.Index.Transport {
	case config.TransportKafka:
		consume = func(ctx context.Context) error {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.AvailabilityTopic)
			defer consumer.Close()
			return consumer.Consume(ctx, kafka.SnapshotHandler(apply))
		}
	case config.TransportRabbitMQ:
		consume = func(ctx context.Context) error {
			q, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
			if err != nil {
				return err
			}
			defer q.Close()
			return q.Consume(ctx, apply)
		}
	default:
		return
	}

	for {
		err := consume(ctx)
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("snapshot consumer stopped, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Index.BackoffStep()):
		}
	}
}
