package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on topic
type Handler func(topic string, msg mqtt.Message) error

// ErrNoHandler is returned by Consume when no handler was set
var ErrNoHandler = errors.New("no message handler set")

// Consumer subscribes to a topic and hands messages to a handler
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewConsumer creates a consumer for topic with QoS 1
func NewConsumer(client mqtt.Client, topic string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		topic:   topic,
		qos:     1,
		handler: handler,
		logger:  logger,
	}
}

// SetHandler replaces the message handler. Call before Consume.
func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// Topic returns the subscribed topic
func (c *Consumer) Topic() string {
	return c.topic
}

// Consume subscribes and blocks until ctx is cancelled, then unsubscribes
func (c *Consumer) Consume(ctx context.Context) error {
	if c.handler == nil {
		return ErrNoHandler
	}

	c.setActive(true)
	defer c.setActive(false)

	if err := c.subscribe(); err != nil {
		return err
	}
	c.logger.Info("subscribed", "topic", c.topic)

	<-ctx.Done()

	c.setActive(false)
	c.client.Unsubscribe(c.topic).Wait()
	return nil
}

func (c *Consumer) setActive(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

// Resubscribe renews the subscription after the client reconnected. It does
// nothing unless Consume is running; use it as Config.OnConnect.
func (c *Consumer) Resubscribe() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if !active {
		return
	}

	if err := c.subscribe(); err != nil {
		c.logger.Error("resubscribing after reconnect", "topic", c.topic, "error", err)
		return
	}
	c.logger.Info("resubscribed after reconnect", "topic", c.topic)
}

func (c *Consumer) subscribe() error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := c.handler(msg.Topic(), msg); err != nil {
			c.logger.Warn("handling mqtt message", "topic", msg.Topic(), "error", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", c.topic, token.Error())
	}
	return nil
}
