// Package history writes computed recommendations to InfluxDB
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mrcode/glucose-calculator/internal/advice"
)

// Measurement is the InfluxDB measurement name for recommendations
const Measurement = "dose_recommendation"

// Config holds the InfluxDB connection settings
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates an InfluxDB client with batched non-blocking writes
func NewClient(cfg Config) influxdb2.Client {
	opts := influxdb2.DefaultOptions().
		SetBatchSize(50).
		SetFlushInterval(uint(5 * time.Second / time.Millisecond))
	return influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
}

// Writer records results through the async write API and tracks write errors
type Writer struct {
	api     api.WriteAPI
	logger  *slog.Logger
	mu      sync.RWMutex
	lastErr time.Time
	written int64
}

// NewWriter wraps w and starts draining its error channel
func NewWriter(w api.WriteAPI, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	ww := &Writer{
		api:     w,
		logger:  logger,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				logger.Warn("influx write error", "error", err)
			}
		}
	}()
	return ww
}

// Record implements advice.Sink
func (w *Writer) Record(_ context.Context, res *advice.Result) error {
	w.api.WritePoint(ResultToPoint(res))
	w.mu.Lock()
	w.written++
	w.mu.Unlock()
	return nil
}

// Flush forces pending points to be written
func (w *Writer) Flush() {
	w.api.Flush()
}

// Written returns the number of points queued so far
func (w *Writer) Written() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written
}

// LastErrorAge returns the time since the last write error
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

// ResultToPoint converts a result into a point. Tags carry the trend, source
// and flags; fields carry the reading and, when needed, the doses.
func ResultToPoint(res *advice.Result) *write.Point {
	tags := map[string]string{
		"trend":     res.Trend.String(),
		"automatic": boolTag(res.Automatic),
		"stale":     boolTag(res.Stale),
		"needed":    boolTag(res.NeedsCorrection()),
	}
	if res.Reading.Source != "" {
		tags["source"] = res.Reading.Source
	}

	fields := map[string]interface{}{
		"id":             res.ID,
		"glucose":        res.Reading.Glucose,
		"delta":          res.Reading.Delta,
		"slope":          res.Reading.Slope,
		"target_glucose": res.TargetGlucose,
		"body_weight":    res.BodyWeight,
	}
	if rec := res.Recommendation; rec != nil {
		fields["dextrose_grams"] = rec.DextroseGrams
		fields["dextrose_projected_decay"] = rec.DextroseProjectedDecay
		fields["banana_grams"] = rec.BananaGrams
		fields["banana_count"] = rec.BananaCount
		fields["banana_projected_decay"] = rec.BananaProjectedDecay
		fields["carb_factor"] = rec.CarbFactor
	}

	return influxdb2.NewPoint(Measurement, tags, fields, res.CreatedAt)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
