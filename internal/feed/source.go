package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/google/uuid"

	"github.com/mrcode/glucose-calculator/internal/broker"
	"github.com/mrcode/glucose-calculator/internal/models"
	"github.com/mrcode/glucose-calculator/internal/nightscout"
)

// ErrNotConfigured is returned when the selected feed lacks its address
var ErrNotConfigured = errors.New("feed is not configured")

// Source delivers readings into a Latest until ctx is cancelled
type Source interface {
	Run(ctx context.Context) error
}

// FromSettings builds the feed selected in settings. For MQTT it connects to the
// broker first; the connection is closed when ctx is cancelled.
func FromSettings(ctx context.Context, settings *models.Settings, latest *Latest, logger *slog.Logger) (Source, error) {
	cfg := settings.Clone()

	switch cfg.FeedSource {
	case models.FeedMQTT:
		if cfg.MQTTBroker == "" || cfg.MQTTTopic == "" {
			return nil, fmt.Errorf("mqtt: %w", ErrNotConfigured)
		}
		// the source exists only after connecting; the first OnConnect sees nil
		var src atomic.Pointer[MQTTSource]
		client, err := broker.Connect(ctx, broker.Config{
			URL:      cfg.MQTTBroker,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: "glucose-calculator-" + uuid.NewString()[:8],
			OnConnect: func(mqtt.Client) {
				if s := src.Load(); s != nil {
					s.Reconnected()
				}
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		s := NewMQTTSource(client, cfg.MQTTTopic, latest, logger)
		src.Store(s)
		return s, nil

	case models.FeedNightscout:
		if cfg.NightscoutURL == "" {
			return nil, fmt.Errorf("nightscout: %w", ErrNotConfigured)
		}
		client := nightscout.NewClient(cfg.NightscoutURL, cfg.APISecret, cfg.APIToken, cfg.UseToken)
		interval := time.Duration(cfg.RefreshInterval) * time.Second
		return NewPoller(client, latest, interval, logger), nil
	}

	return nil, fmt.Errorf("unknown feed source %q", cfg.FeedSource)
}
