package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends session lifecycle events to a RabbitMQ exchange.
type Publisher struct {
	channel Channel
	cfg     *config.RabbitMQConfig
}

func NewPublisher(cfg *config.Configuration, channel Channel) *Publisher {
	return &Publisher{
		channel: channel,
		cfg:     &cfg.Queue.RabbitMQ,
	}
}

// routingKey is "<routing-key>.<action>", e.g. session.session.gc.
func (p *Publisher) routingKey(action string) string {
	if p.cfg.RoutingKey == "" {
		return action
	}
	return p.cfg.RoutingKey + "." + action
}

func (p *Publisher) Publish(ctx context.Context, event models.SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	routingKey := p.routingKey(event.Action)
	err = p.channel.Publish(
		p.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.Timestamp,
		},
	)

	if err != nil {
		logrus.WithError(err).Error("Failed to publish session event")
		return fmt.Errorf("%w: %v", models.ErrQueuePublish, err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  event.SessionID,
		"service":     event.ServiceName,
		"action":      event.Action,
		"exchange":    p.cfg.Exchange,
		"routing_key": routingKey,
	}).Debug("Session event published")

	return nil
}
