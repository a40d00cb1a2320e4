package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestSnapshotPublisher_KeysByUnit(t *testing.T) {
	log, _ := test.NewNullLogger()
	w := &MockWriter{}
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]kafka.Message)
	}).Return(nil).Once()

	pub := NewSnapshotPublisher(NewProducerWithWriter(w, log), "availability_snapshots")
	snap := &domain.AvailabilitySnapshot{UnitID: 42, Version: 7}
	require.NoError(t, pub.PushAvailability(context.Background(), snap))

	require.Len(t, sent, 1)
	assert.Equal(t, "availability_snapshots", sent[0].Topic)
	assert.Equal(t, "42", string(sent[0].Key))

	var decoded domain.AvailabilitySnapshot
	require.NoError(t, json.Unmarshal(sent[0].Value, &decoded))
	assert.Equal(t, int64(7), decoded.Version)
	w.AssertExpectations(t)
}

func TestProducer_PublishError(t *testing.T) {
	log, _ := test.NewNullLogger()
	w := &MockWriter{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	p := NewProducerWithWriter(w, log)
	err := p.Publish(context.Background(), "booking_events", "b-1", NewBookingEvent("booking_created", &domain.Booking{ID: "b-1"}))
	assert.ErrorContains(t, err, "leader not available")

	err = p.Publish(context.Background(), "booking_events", "b-1", func() {})
	assert.ErrorContains(t, err, "failed to marshal payload")
}

func TestNewBookingEvent(t *testing.T) {
	in := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ev := NewBookingEvent("booking_confirmed", &domain.Booking{
		ID: "b-2", UnitID: 3, CheckIn: in, CheckOut: in.AddDate(0, 0, 2), Status: domain.BookingStatusConfirmed, GuestEmail: "g@example.com",
	})
	assert.Equal(t, "booking_confirmed", ev.Type)
	assert.Equal(t, "CONFIRMED", ev.Status)
	assert.Equal(t, int64(3), ev.UnitID)
}

func TestSnapshotHandler(t *testing.T) {
	var got *domain.AvailabilitySnapshot
	handler := SnapshotHandler(func(_ context.Context, s *domain.AvailabilitySnapshot) error {
		got = s
		return nil
	})

	payload, _ := json.Marshal(domain.AvailabilitySnapshot{UnitID: 5})
	require.NoError(t, handler(context.Background(), kafka.Message{Value: payload}))
	assert.Equal(t, int64(5), got.UnitID)

	assert.Error(t, handler(context.Background(), kafka.Message{Value: []byte("{")}))
}

func TestCheckConnection_NoBrokers(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := NewProducerWithWriter(&MockWriter{}, log)
	assert.Error(t, p.CheckConnection(context.Background()))
}

func TestBookingEventHandler(t *testing.T) {
	calls := 0
	handler := BookingEventHandler(func(_ context.Context, ev BookingEvent) error {
		calls++
		assert.Equal(t, "b1", ev.BookingID)
		return nil
	})

	payload, _ := json.Marshal(BookingEvent{Type: "booking_created", BookingID: "b1"})
	require.NoError(t, handler(context.Background(), kafka.Message{Value: payload}))
	require.NoError(t, handler(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Equal(t, 1, calls)
}
