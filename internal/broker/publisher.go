package broker

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends JSON messages to a fixed topic
type Publisher struct {
	client   mqtt.Client
	topic    string
	qos      byte
	retained bool
}

// NewPublisher creates a publisher. Retained messages let late subscribers see the last value.
func NewPublisher(client mqtt.Client, topic string, retained bool) *Publisher {
	return &Publisher{client: client, topic: topic, qos: 1, retained: retained}
}

// PublishJSON marshals v and publishes it
func (p *Publisher) PublishJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return nil
}
