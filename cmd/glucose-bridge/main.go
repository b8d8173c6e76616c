// Command glucose-bridge runs the calculator headless: it follows an MQTT or
// Nightscout feed and serves recommendations over HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/api"
	"github.com/mrcode/glucose-calculator/internal/broker"
	"github.com/mrcode/glucose-calculator/internal/feed"
	"github.com/mrcode/glucose-calculator/internal/history"
	"github.com/mrcode/glucose-calculator/internal/logging"
	"github.com/mrcode/glucose-calculator/internal/metrics"
)

func main() {
	cfg, err := loadConfig()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge: shutdown complete")
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	latest := feed.NewLatest()
	svc := advice.NewService(latest, cfg.Settings, logger)

	m := metrics.New()
	latest.OnUpdate(m.ObserveReading)
	svc.AddSink(m)

	hub := api.NewHub(logger)
	go hub.Run(ctx)
	latest.OnUpdate(hub.PublishReading)
	svc.AddSink(hub)

	var hist api.HistoryStats
	if cfg.Influx.URL != "" {
		client := history.NewClient(cfg.Influx)
		defer client.Close()
		writer := history.NewWriter(client.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket), logger)
		defer writer.Flush()
		svc.AddSink(writer)
		m.WatchHistory(writer.Written)
		hist = writer
		logger.Info("recording history", "influx", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	}

	if cfg.PublishTopic != "" {
		if err := attachPublisher(ctx, cfg, svc, logger); err != nil {
			return err
		}
	}

	if cfg.RedisAddr != "" {
		rdb, err := feed.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store := feed.NewRedisStore(rdb, cfg.RedisPrefix, cfg.RedisTTL, logger)
		if err := store.Attach(ctx, latest); err != nil {
			return err
		}
	}

	svc.Attach(ctx, latest)

	go runFeed(ctx, cfg, latest, logger)

	srv := api.NewServer(api.Options{
		Advice:   svc,
		Latest:   latest,
		Settings: cfg.Settings,
		Hub:      hub,
		Metrics:  m.Handler(),
		History:  hist,
		Logger:   logger,
	})
	return srv.Run(ctx, cfg.HTTPAddr)
}

// runFeed follows the configured feed until ctx is cancelled. The API keeps
// accepting posted readings when the feed fails.
func runFeed(ctx context.Context, cfg Config, latest *feed.Latest, logger *slog.Logger) {
	src, err := feed.FromSettings(ctx, cfg.Settings, latest, logger)
	if err != nil {
		logger.Error("glucose feed unavailable", "feed", cfg.Settings.FeedSource, "error", err)
		return
	}
	logger.Info("following glucose feed", "feed", cfg.Settings.FeedSource)
	if err := src.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("glucose feed stopped", "error", err)
	}
}

// attachPublisher publishes every result as retained JSON on its own connection
func attachPublisher(ctx context.Context, cfg Config, svc *advice.Service, logger *slog.Logger) error {
	s := cfg.Settings.Clone()
	client, err := broker.Connect(ctx, broker.Config{
		URL:      s.MQTTBroker,
		Username: s.MQTTUsername,
		Password: s.MQTTPassword,
		ClientID: "glucose-bridge-" + uuid.NewString()[:8],
	}, logger)
	if err != nil {
		return err
	}

	pub := broker.NewPublisher(client, cfg.PublishTopic, true)
	svc.AddSink(advice.SinkFunc(func(_ context.Context, res *advice.Result) error {
		return pub.PublishJSON(res)
	}))
	logger.Info("publishing recommendations", "topic", cfg.PublishTopic)
	return nil
}
