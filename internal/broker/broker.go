// Package broker wraps the MQTT client used for sensor broadcasts and recommendation events
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config holds the MQTT connection settings
type Config struct {
	URL        string // tcp://host:port
	Username   string
	Password   string
	ClientID   string
	MaxRetries int
	MaxElapsed time.Duration

	// OnConnect runs after the first connect and after every automatic
	// reconnect. Clean sessions lose their subscriptions on reconnect.
	OnConnect func(mqtt.Client)
}

// quiesce is how long Disconnect waits for in-flight work, in milliseconds
const quiesce = 250

// Connect dials the broker, retrying with exponential backoff. The client is
// disconnected when ctx is cancelled.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := clientOptions(cfg, logger)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.URL, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.URL, err)
	}

	logger.Info("connected to mqtt broker", "broker", cfg.URL)

	go func() {
		<-ctx.Done()
		Close(client)
		logger.Info("mqtt connection closed", "broker", cfg.URL)
	}()

	return client, nil
}

func clientOptions(cfg Config, logger *slog.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.URL, "error", err)
	})
	if cfg.OnConnect != nil {
		opts.SetOnConnectHandler(cfg.OnConnect)
	}
	return opts
}

// Close disconnects the client if it is still connected
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(quiesce)
	}
}
