package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// EventProducer publishes JSON events to a durable topic exchange.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      logrus.FieldLogger
}

// NewEventProducer dials RabbitMQ and declares the exchange.
func NewEventProducer(amqpURL, exchange string, log logrus.FieldLogger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &EventProducer{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      log.WithField("component", "event_producer"),
	}
	if err := p.declare(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Publish sends body as JSON with the given routing key. A failed publish
// reopens the channel once and retries.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, routingKey, payload)
	if err == nil {
		return nil
	}

	p.log.WithError(err).WithField("routing_key", routingKey).Warn("publish failed; reopening channel")
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	if err := p.declare(); err != nil {
		return err
	}
	return p.publish(ctx, routingKey, payload)
}

// Close closes the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *EventProducer) declare() error {
	return p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	)
}

func (p *EventProducer) publish(ctx context.Context, routingKey string, payload []byte) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         payload,
		},
	)
}

// FallbackProducer logs and drops events. It is used when RabbitMQ is not
// configured or unreachable at startup.
type FallbackProducer struct {
	log logrus.FieldLogger
}

// NewFallbackProducer creates a FallbackProducer.
func NewFallbackProducer(log logrus.FieldLogger) *FallbackProducer {
	return &FallbackProducer{log: log.WithField("component", "event_producer")}
}

// Publish logs the skipped event.
func (p *FallbackProducer) Publish(_ context.Context, routingKey string, _ any) error {
	p.log.WithField("routing_key", routingKey).Debug("publish skipped")
	return nil
}

// Close is a no-op.
func (p *FallbackProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

var (
	_ Publisher = (*EventProducer)(nil)
	_ Publisher = (*FallbackProducer)(nil)
)
