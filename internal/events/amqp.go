package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const ExchangeType = "topic"

// Dial connects to the broker and declares the topic exchange events are
// forwarded to.
func Dial(url, exchange string, log *zap.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	// the broker may still be starting next to us
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("failed to connect to broker", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not connect to broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "could not open channel")
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "could not declare exchange")
	}
	return conn, ch, nil
}

// Channel is the part of *amqp.Channel the forwarder uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Forwarder republishes bus events to an AMQP exchange with the topic as
// routing key, for consumers outside this process.
type Forwarder struct {
	ch       Channel
	exchange string
	log      *zap.Logger
	timeout  time.Duration
}

func NewForwarder(ch Channel, exchange string, log *zap.Logger) *Forwarder {
	return &Forwarder{ch: ch, exchange: exchange, log: log, timeout: 5 * time.Second}
}

// Attach subscribes the forwarder to the order and stock topics on bus.
func (f *Forwarder) Attach(bus *Bus) error {
	if err := bus.Subscribe(TopicOrderPlaced, func(e OrderPlaced) { f.forward(TopicOrderPlaced, e) }); err != nil {
		return err
	}
	if err := bus.Subscribe(TopicOrderCancelled, func(e OrderCancelled) { f.forward(TopicOrderCancelled, e) }); err != nil {
		return err
	}
	return bus.Subscribe(TopicStockLow, func(e StockLow) { f.forward(TopicStockLow, e) })
}

func (f *Forwarder) forward(topic string, payload interface{}) {
	if err := f.Publish(topic, payload); err != nil {
		f.log.Error("failed to forward event", zap.String("topic", topic), zap.Error(err))
	}
}

func (f *Forwarder) Publish(topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "could not marshal event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	return f.ch.PublishWithContext(ctx,
		f.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}
