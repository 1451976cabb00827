package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"custeio/internal/core"
	"custeio/internal/log"
)

const publishTimeout = 5 * time.Second

// WarmHandler processes one decoded warm request. A transient error
// requeues the delivery; any other error drops it.
type WarmHandler func(ctx context.Context, msg *WarmRequestMessage) error

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on a direct exchange
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// one year at a time per consumer; a load can take minutes
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	return nil
}

// PublishWarmRequest enqueues a request to load year into the cache.
func (c *Client) PublishWarmRequest(ctx context.Context, year int, force bool) error {
	msg := NewWarmRequestMessage(year, force)
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published warm request",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldYear, year,
		log.FieldForceRefresh, force,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeWarmRequests blocks delivering warm requests to handler until ctx
// is done or the channel closes.
func (c *Client) ConsumeWarmRequests(ctx context.Context, handler WarmHandler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming warm requests",
		log.FieldComponent, log.ComponentAMQP,
		"queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption",
				log.FieldComponent, log.ComponentAMQP,
				"reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, handler)
		}
	}
}

// handleDelivery acks on success, drops undecodable bodies and requeues
// only transient handler failures.
func handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler WarmHandler) {
	msg, err := WarmRequestMessageFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping malformed warm request",
			log.NewFields().WithComponent(log.ComponentAMQP).WithError(err).ToSlice()...)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		kind := core.ErrorKind(err)
		requeue := transient(kind)
		slog.ErrorContext(ctx, "Failed to handle warm request",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldYear, msg.Year,
			log.FieldError, err.Error(),
			"kind", kind,
			"requeue", requeue)
		delivery.Nack(false, requeue)
		return
	}

	delivery.Ack(false)
	slog.InfoContext(ctx, "Processed warm request",
		log.FieldComponent, log.ComponentAMQP,
		log.FieldYear, msg.Year,
		log.FieldForceRefresh, msg.Force)
}

// transient reports whether a failure of the given kind may succeed on
// redelivery. Source data errors repeat on every attempt.
func transient(kind string) bool {
	switch kind {
	case core.KindCanceled, core.KindTransport, core.KindUnexpectedStatus:
		return true
	}
	return false
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
