package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrcode/glucose-calculator/internal/models"
)

// SourceNightscout tags readings fetched from Nightscout
const SourceNightscout = "nightscout"

// ErrNoEntries is returned when Nightscout has no usable entry
var ErrNoEntries = errors.New("no glucose entries returned")

// EntriesFetcher returns the newest glucose entries, newest first
type EntriesFetcher interface {
	GetRecentEntries(ctx context.Context, count int) ([]models.GlucoseEntry, error)
}

// Poller periodically fetches the latest entries from Nightscout
type Poller struct {
	fetcher  EntriesFetcher
	latest   *Latest
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller. Intervals under 30 seconds are raised to 30 seconds.
func NewPoller(fetcher EntriesFetcher, latest *Latest, interval time.Duration, logger *slog.Logger) *Poller {
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, latest: latest, interval: interval, logger: logger}
}

// Poll fetches once and stores the derived reading
func (p *Poller) Poll(ctx context.Context) error {
	entries, err := p.fetcher.GetRecentEntries(ctx, 2)
	if err != nil {
		return fmt.Errorf("fetching entries: %w", err)
	}

	reading, ok := models.ReadingFromEntries(entries, SourceNightscout)
	if !ok {
		return ErrNoEntries
	}

	if p.latest.Set(reading) {
		p.logger.Debug("reading received", "glucose", reading.Glucose, "delta", reading.Delta)
	}
	return nil
}

// Run polls immediately and then on every interval until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("nightscout poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
