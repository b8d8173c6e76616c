// Package advice turns sensor readings into dose recommendations and fans them out to sinks
package advice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/feed"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Errors returned by the service
var (
	ErrNoReading      = errors.New("no sensor reading available")
	ErrInvalidTarget  = errors.New("target glucose must be a positive number")
	ErrInvalidReading = errors.New("invalid glucose value")
)

// Result is one computed recommendation together with its inputs
type Result struct {
	ID             string                 `json:"id"`
	Reading        models.SensorReading   `json:"reading"`
	Trend          dosing.Trend           `json:"trend"`
	TargetGlucose  float64                `json:"targetGlucose"`
	BodyWeight     float64                `json:"bodyWeight"`
	Recommendation *dosing.Recommendation `json:"recommendation"` // nil when no correction is needed
	Stale          bool                   `json:"stale"`
	Automatic      bool                   `json:"automatic"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// NeedsCorrection reports whether a dose was recommended
func (r *Result) NeedsCorrection() bool {
	return r.Recommendation != nil
}

// Sink receives every computed result
type Sink interface {
	Record(ctx context.Context, res *Result) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, res *Result) error

// Record calls f
func (f SinkFunc) Record(ctx context.Context, res *Result) error {
	return f(ctx, res)
}

// Service computes recommendations from the latest reading
type Service struct {
	latest   *feed.Latest
	settings *models.Settings
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	sinks []Sink
	last  *Result
}

// NewService creates a service reading from latest and configured by settings
func NewService(latest *feed.Latest, settings *models.Settings, logger *slog.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		latest:   latest,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		sinks:    sinks,
	}
}

// AddSink registers another sink
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Last returns the most recent result, or nil
func (s *Service) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Latest returns the latest sensor reading
func (s *Service) Latest() (models.SensorReading, bool) {
	return s.latest.Get()
}

// Calculate computes a recommendation from the latest reading
func (s *Service) Calculate(ctx context.Context, target, bodyWeight float64) (*Result, error) {
	reading, ok := s.latest.Get()
	if !ok {
		return nil, ErrNoReading
	}
	return s.CalculateFor(ctx, reading, target, bodyWeight)
}

// CalculateFor computes a recommendation for an explicit reading
func (s *Service) CalculateFor(ctx context.Context, reading models.SensorReading, target, bodyWeight float64) (*Result, error) {
	return s.calculate(ctx, reading, target, bodyWeight, false)
}

// CalculateDefault uses the configured target and body weight
func (s *Service) CalculateDefault(ctx context.Context) (*Result, error) {
	target, weight := s.settings.Calculator()
	return s.Calculate(ctx, target, weight)
}

// HandleReading is the automatic mode: when enabled, a reading at or below the
// low threshold produces a recommendation with the configured target and weight.
// It returns nil without error when nothing was computed.
func (s *Service) HandleReading(ctx context.Context, reading models.SensorReading) (*Result, error) {
	cfg := s.settings.Clone()
	if !cfg.AutoRecommend || cfg.BodyWeight <= 0 {
		return nil, nil
	}
	if reading.Glucose > float64(cfg.TargetLow) {
		return nil, nil
	}
	return s.calculate(ctx, reading, cfg.TargetGlucose, cfg.BodyWeight, true)
}

// Attach runs HandleReading for every reading stored in latest
func (s *Service) Attach(ctx context.Context, latest *feed.Latest) {
	latest.OnUpdate(func(r models.SensorReading) {
		if _, err := s.HandleReading(ctx, r); err != nil {
			s.logger.Warn("automatic recommendation failed", "glucose", r.Glucose, "error", err)
		}
	})
}

func (s *Service) calculate(ctx context.Context, reading models.SensorReading, target, bodyWeight float64, automatic bool) (*Result, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return nil, ErrInvalidTarget
	}
	if !reading.Valid() {
		return nil, fmt.Errorf("%w %v", ErrInvalidReading, reading.Glucose)
	}

	trend := dosing.Classify(reading.Slope)
	rec, err := dosing.Calculate(reading.Glucose, target, bodyWeight, reading.Delta, trend)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &Result{
		ID:             uuid.NewString(),
		Reading:        reading,
		Trend:          trend,
		TargetGlucose:  target,
		BodyWeight:     bodyWeight,
		Recommendation: rec,
		Stale:          !reading.IsRecent(now, s.settings.StaleAfter()),
		Automatic:      automatic,
		CreatedAt:      now,
	}

	s.mu.Lock()
	s.last = res
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	s.logger.Info("recommendation computed",
		"id", res.ID,
		"glucose", reading.Glucose,
		"target", target,
		"trend", trend.String(),
		"needed", res.NeedsCorrection(),
		"stale", res.Stale,
	)

	for _, sink := range sinks {
		if err := sink.Record(ctx, res); err != nil {
			s.logger.Warn("recording recommendation", "id", res.ID, "error", err)
		}
	}

	return res, nil
}
