// Package brokertest provides an in-memory MQTT client for tests
package brokertest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token is a completed token carrying an optional error
type Token struct {
	Err error
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.Err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message is a static MQTT message
type Message struct {
	TopicName string
	Body      []byte
	ID        uint16
	Dup       bool
}

func (m *Message) Duplicate() bool   { return m.Dup }
func (m *Message) Qos() byte         { return 1 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return m.ID }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}

// Published records one Publish call
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client is an in-memory mqtt.Client. Methods not overridden panic if called.
type Client struct {
	mqtt.Client

	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []Published
	subscribed   chan string
	SubscribeErr error
	PublishErr   error

	// OnConnect is run by Reconnect, like paho's on-connect handler
	OnConnect func(mqtt.Client)
}

// NewClient creates a client with no subscriptions
func NewClient() *Client {
	return &Client{
		handlers:   make(map[string]mqtt.MessageHandler),
		subscribed: make(chan string, 16),
	}
}

func (c *Client) IsConnected() bool      { return true }
func (c *Client) IsConnectionOpen() bool { return true }
func (c *Client) Disconnect(uint)        {}

// Subscribe registers the handler for topic
func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	if c.SubscribeErr != nil {
		return &Token{Err: c.SubscribeErr}
	}
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
	select {
	case c.subscribed <- topic:
	default:
	}
	return &Token{}
}

// Unsubscribe removes the handlers for topics
func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return &Token{}
}

// Publish records the message and delivers it to a subscriber of the same topic
func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if c.PublishErr != nil {
		return &Token{Err: c.PublishErr}
	}

	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}

	c.mu.Lock()
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	handler := c.handlers[topic]
	c.mu.Unlock()

	if handler != nil {
		handler(c, &Message{TopicName: topic, Body: body})
	}
	return &Token{}
}

// Deliver hands msg to the subscriber of its topic and reports whether one existed
func (c *Client) Deliver(msg *Message) bool {
	c.mu.Lock()
	handler := c.handlers[msg.TopicName]
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(c, msg)
	return true
}

// WaitSubscribed blocks until a subscription is made or the timeout elapses
func (c *Client) WaitSubscribed(timeout time.Duration) (string, bool) {
	select {
	case topic := <-c.subscribed:
		return topic, true
	case <-time.After(timeout):
		return "", false
	}
}

// Subscribed reports whether topic currently has a handler
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[topic]
	return ok
}

// Reconnect simulates an automatic reconnect with a clean session: the broker
// has forgotten every subscription, then OnConnect runs.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.handlers = make(map[string]mqtt.MessageHandler)
	onConnect := c.OnConnect
	c.mu.Unlock()

	if onConnect != nil {
		onConnect(c)
	}
}

// Published returns a copy of all published messages
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Published, len(c.published))
	copy(out, c.published)
	return out
}
