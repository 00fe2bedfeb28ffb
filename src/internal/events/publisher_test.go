package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func newTestPublisher(ch Channel) *Publisher {
	cfg := &config.Configuration{}
	cfg.Queue.RabbitMQ.Exchange = "session.events"
	cfg.Queue.RabbitMQ.RoutingKey = "svc"
	return NewPublisher(cfg, ch)
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	ts := time.Unix(1700000000, 0).UTC()

	err := p.Publish(context.Background(), models.SessionEvent{
		ServiceName: models.ServiceSessionCollector,
		Action:      models.ActionSessionGC,
		Removed:     3,
		Cutoff:      150,
		Timestamp:   ts,
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	sent := ch.sent[0]
	assert.Equal(t, "session.events", sent.exchange)
	assert.Equal(t, "svc.session.gc", sent.key)
	assert.Equal(t, "application/json", sent.msg.ContentType)

	var event models.SessionEvent
	require.NoError(t, json.Unmarshal(sent.msg.Body, &event))
	assert.Equal(t, int64(3), event.Removed)
	assert.Equal(t, int64(150), event.Cutoff)
	assert.True(t, ts.Equal(event.Timestamp))
}

func TestPublisher_PublishFailure(t *testing.T) {
	p := newTestPublisher(&fakeChannel{err: errors.New("channel closed")})

	err := p.Publish(context.Background(), models.SessionEvent{Action: models.ActionSessionDestroyed})
	assert.ErrorIs(t, err, models.ErrQueuePublish)
}

func TestPublisher_CanceledContext(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, models.SessionEvent{Action: models.ActionSessionCreated}), context.Canceled)
	assert.Empty(t, ch.sent)
}
