package amqpbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testEvent() *event.Event {
	return &event.Event{
		ID:        id.NewEventID(),
		StreamID:  id.NewStreamID(),
		Type:      event.TypeWithdrawn,
		Authority: "bob",
		Amount:    250,
		Timestamp: 150,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewRejectsNilChannel(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilChannel)
}

func TestPublish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := New(ch, WithExchange("streams"), WithAppID("vestingd"))
	require.NoError(t, err)

	e := testEvent()
	require.NoError(t, p.OnEventRecorded(context.Background(), e))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, "streams", got.exchange)
	assert.Equal(t, "stream.withdrawn", got.key)
	assert.Equal(t, e.ID.String(), got.msg.MessageId)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "vestingd", got.msg.AppId)
	assert.Equal(t, e.StreamID.String(), got.msg.Headers["stream_id"])

	var decoded event.Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, uint64(250), decoded.Amount)
}

func TestPublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p, err := New(ch)
	require.NoError(t, err)

	err = p.Publish(context.Background(), testEvent())
	assert.ErrorContains(t, err, "channel closed")
}

func TestShutdownClosesChannel(t *testing.T) {
	ch := &fakeChannel{}
	p, err := New(ch)
	require.NoError(t, err)

	require.NoError(t, p.OnShutdown(context.Background()))
	assert.True(t, ch.closed)
}
