package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mrcode/glucose-calculator/internal/broker"
	"github.com/mrcode/glucose-calculator/internal/dedup"
)

// SourceMQTT tags readings received from the MQTT broadcast
const SourceMQTT = "mqtt"

// MQTTSource stores xDrip+ broadcasts received over MQTT
type MQTTSource struct {
	consumer *broker.Consumer
	latest   *Latest
	dedup    *dedup.Deduper
	logger   *slog.Logger
	now      func() time.Time
}

// NewMQTTSource subscribes to topic on Run and writes readings into latest
func NewMQTTSource(client mqtt.Client, topic string, latest *Latest, logger *slog.Logger) *MQTTSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSource{
		latest: latest,
		dedup:  dedup.New(15*time.Minute, 1000),
		logger: logger,
		now:    time.Now,
	}
	s.consumer = broker.NewConsumer(client, topic, s.handle, logger)
	return s
}

// Run blocks until ctx is cancelled
func (s *MQTTSource) Run(ctx context.Context) error {
	s.logger.Info("listening for xdrip broadcasts", "topic", s.consumer.Topic())
	return s.consumer.Consume(ctx)
}

// Reconnected restores the subscription a clean session dropped
func (s *MQTTSource) Reconnected() {
	s.consumer.Resubscribe()
}

func (s *MQTTSource) handle(topic string, msg mqtt.Message) error {
	var b Broadcast
	if err := json.Unmarshal(msg.Payload(), &b); err != nil {
		return fmt.Errorf("decoding broadcast: %w", err)
	}

	if !s.dedup.ShouldProcess(broadcastKey(topic, b)) {
		return nil
	}

	reading := b.Reading(s.now(), SourceMQTT)
	if !s.latest.Set(reading) {
		s.logger.Debug("reading ignored", "glucose", reading.Glucose, "timestamp", reading.Timestamp)
		return nil
	}

	s.logger.Debug("reading received", "glucose", reading.Glucose, "delta", reading.Delta, "slope", reading.Slope)
	return nil
}

// broadcastKey identifies redeliveries of the same estimate. Untimed broadcasts are never deduplicated.
func broadcastKey(topic string, b Broadcast) string {
	if b.Timestamp <= 0 {
		return ""
	}
	return topic + "#" + strconv.FormatInt(b.Timestamp, 10) + "#" + strconv.FormatFloat(b.Glucose, 'f', -1, 64)
}
