package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Queue publishes and consumes availability snapshots on a durable queue.
type Queue struct {
	conn    *amqp.Connection
	channel Channel
	name    string
	log     logrus.FieldLogger
}

func Dial(url, queue string, log logrus.FieldLogger) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := NewQueue(ch, queue, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	q.conn = conn
	return q, nil
}

// NewQueue declares the durable queue on an open channel.
func NewQueue(ch Channel, name string, log logrus.FieldLogger) (*Queue, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Queue{channel: ch, name: name, log: log}, nil
}

func (q *Queue) PushAvailability(_ context.Context, snap *domain.AvailabilitySnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return q.channel.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(snap.UnitID, 10) + "-" + strconv.FormatInt(snap.Version, 10),
		Body:         body,
	})
}

// Consume applies snapshots one at a time until ctx is done. A delivery that fails to apply is
// requeued; one that cannot be decoded is dropped.
func (q *Queue) Consume(ctx context.Context, apply func(context.Context, *domain.AvailabilitySnapshot) error) error {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := q.channel.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			q.handle(ctx, msg, apply)
		}
	}
}

func (q *Queue) handle(ctx context.Context, msg amqp.Delivery, apply func(context.Context, *domain.AvailabilitySnapshot) error) {
	var snap domain.AvailabilitySnapshot
	if err := json.Unmarshal(msg.Body, &snap); err != nil {
		q.log.WithError(err).WithField("message_id", msg.MessageId).Error("drop undecodable snapshot")
		_ = msg.Nack(false, false)
		return
	}
	if err := apply(ctx, &snap); err != nil {
		q.log.WithError(err).WithField("unit_id", snap.UnitID).Warn("apply snapshot failed, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (q *Queue) Close() error {
	err := q.channel.Close()
	if q.conn != nil {
		if cerr := q.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
