package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

type recordingChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    int
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed++
	return nil
}

func sampleEvent() reservation.LifecycleEvent {
	return reservation.LifecycleEvent{
		Type:           reservation.LifecycleConfirmed,
		ReservationID:  "res-1",
		EventID:        "event-1",
		VisitorEmail:   "a@example.com",
		NumberOfPeople: 3,
		Status:         reservation.StatusConfirmed,
		OccurredAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := newPublisherWithChannel(ch, "booking.reservations")

	err := p.Publish(context.Background(), sampleEvent())

	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	assert.Equal(t, "/booking.reservations", ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "res-1", msg.MessageId)
	assert.Equal(t, "reservation.confirmed", msg.Type)
	assert.JSONEq(t, `{
		"type": "reservation.confirmed",
		"reservation_id": "res-1",
		"event_id": "event-1",
		"visitor_email": "a@example.com",
		"number_of_people": 3,
		"status": "CONFIRMED",
		"occurred_at": "2026-03-01T09:00:00Z"
	}`, string(msg.Body))
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &recordingChannel{err: amqp.ErrClosed}
	p := newPublisherWithChannel(ch, "booking.reservations")

	err := p.Publish(context.Background(), sampleEvent())

	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestPublisher_Close(t *testing.T) {
	ch := &recordingChannel{}
	p := newPublisherWithChannel(ch, "booking.reservations")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, ch.closed)

	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrPublisherClosed)
}
