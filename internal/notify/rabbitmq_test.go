package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"album_poster/internal/domain"
)

type recordingChannel struct {
	exchange string
	key      string
	messages []amqp.Publishing
	err      error
	closed   bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange = exchange
	c.key = key
	c.messages = append(c.messages, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func newTestNotifier(ch publishChannel, now time.Time) *RabbitMQ {
	return &RabbitMQ{
		channel:    ch,
		exchange:   "album_poster",
		routingKey: "published",
		now:        func() time.Time { return now },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNotifyPublished_MessageFormat(t *testing.T) {
	ch := &recordingChannel{}
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	n := newTestNotifier(ch, now)

	event := &domain.PublishedEvent{
		ItemID:      "item-1",
		Filename:    "IMG_1.jpg",
		Caption:     "harbour",
		RemoteID:    "109",
		URL:         "https://m.example/@poster/109",
		PublishedAt: now.Add(-time.Second),
	}

	require.NoError(t, n.NotifyPublished(context.Background(), event))

	require.Len(t, ch.messages, 1)
	msg := ch.messages[0]
	assert.Equal(t, "album_poster", ch.exchange)
	assert.Equal(t, "published", ch.key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, msg.MessageId, body["id"])
	assert.Equal(t, ActionPublished, body["action"])

	item := body["item"].(map[string]any)
	assert.Equal(t, "item-1", item["item_id"])
	assert.Equal(t, "harbour", item["caption"])
	assert.Equal(t, "109", item["remote_id"])
}

func TestNotifyPublished_ChannelError(t *testing.T) {
	ch := &recordingChannel{err: errors.New("channel closed")}
	n := newTestNotifier(ch, time.Now())

	err := n.NotifyPublished(context.Background(), &domain.PublishedEvent{ItemID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish message")
}

func TestClose(t *testing.T) {
	ch := &recordingChannel{}
	n := newTestNotifier(ch, time.Now())

	require.NoError(t, n.Close())
	assert.True(t, ch.closed)
}
