// Package app binds the calculator, its feed and the tray into the desktop application
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/autostart"
	"github.com/mrcode/glucose-calculator/internal/display"
	"github.com/mrcode/glucose-calculator/internal/feed"
	"github.com/mrcode/glucose-calculator/internal/models"
	"github.com/mrcode/glucose-calculator/internal/nightscout"
	"github.com/mrcode/glucose-calculator/internal/notifications"
	"github.com/mrcode/glucose-calculator/internal/tray"
)

// Events emitted to the frontend
const (
	EventGlucoseUpdate  = "glucose:update"
	EventGlucoseError   = "glucose:error"
	EventRecommendation = "recommendation:update"
)

// historyWindow is how far back the sparkline is filled on startup
const historyWindow = 2 * time.Hour

// CalculatorService is the wails service behind the tray
type CalculatorService struct {
	settings *models.Settings
	logger   *slog.Logger
	latest   *feed.Latest
	advice   *advice.Service
	notifier *notifications.Manager
	icon     *tray.Icon

	// connect builds the feed; replaced in tests
	connect func(ctx context.Context) (feed.Source, error)

	mu         sync.RWMutex
	ctx        context.Context
	stopFeed   context.CancelFunc
	feedGen    uint64
	present    func(tray.Frame)
	emit       func(name string, data any)
	lastStatus *models.GlucoseStatus
	now        func() time.Time
}

// NewCalculatorService loads the settings from disk and builds the service
func NewCalculatorService(logger *slog.Logger) *CalculatorService {
	if logger == nil {
		logger = slog.Default()
	}
	settings := models.DefaultSettings()
	if err := settings.Load(); err != nil {
		logger.Error("loading settings, using defaults", "error", err)
	}
	return newService(settings, logger)
}

func newService(settings *models.Settings, logger *slog.Logger) *CalculatorService {
	if logger == nil {
		logger = slog.Default()
	}

	latest := feed.NewLatest()
	s := &CalculatorService{
		settings: settings,
		logger:   logger,
		latest:   latest,
		notifier: notifications.NewManager(settings),
		icon:     tray.NewIcon(settings),
		ctx:      context.Background(),
		present:  func(tray.Frame) {},
		emit:     func(string, any) {},
		now:      time.Now,
	}
	s.advice = advice.NewService(latest, settings, logger, s.notifier, advice.SinkFunc(s.showRecommendation))
	s.connect = func(ctx context.Context) (feed.Source, error) {
		return feed.FromSettings(ctx, s.settings, s.latest, s.logger)
	}

	latest.OnUpdate(s.onReading)
	return s
}

// ServiceStartup starts the feed once the application runs
func (s *CalculatorService) ServiceStartup(ctx context.Context, _ application.ServiceOptions) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.advice.Attach(ctx, s.latest)
	s.applyFrame(s.icon.Loading())

	if s.settings.FeedConfigured() {
		s.restartFeed()
	}
	go s.refreshLoop(ctx)
	return nil
}

// ServiceShutdown stops the feed
func (s *CalculatorService) ServiceShutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopFeed != nil {
		s.stopFeed()
		s.stopFeed = nil
	}
	return nil
}

// SetApp routes events to the application
func (s *CalculatorService) SetApp(app *application.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit = func(name string, data any) {
		app.Event.Emit(name, data)
	}
}

// SetTray routes rendered frames to the system tray
func (s *CalculatorService) SetTray(t *application.SystemTray) {
	s.mu.Lock()
	s.present = func(f tray.Frame) {
		t.SetLabel(f.Label)
		t.SetTooltip(f.Tooltip)
		if f.Icon != nil {
			t.SetIcon(f.Icon)
		}
	}
	status := s.lastStatus
	s.mu.Unlock()

	if status != nil {
		s.applyFrame(s.icon.Refresh(status))
	}
}

func (s *CalculatorService) applyFrame(f tray.Frame) {
	s.mu.RLock()
	present := s.present
	s.mu.RUnlock()
	present(f)
}

func (s *CalculatorService) publish(name string, data any) {
	s.mu.RLock()
	emit := s.emit
	s.mu.RUnlock()
	emit(name, data)
}

// restartFeed stops the running feed and starts the configured one
func (s *CalculatorService) restartFeed() {
	s.mu.Lock()
	if s.stopFeed != nil {
		s.stopFeed()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.stopFeed = cancel
	s.feedGen++
	gen := s.feedGen
	s.mu.Unlock()

	go func() {
		err := s.runFeed(ctx)
		s.feedStopped(gen)
		if err != nil && ctx.Err() == nil {
			s.feedError(err)
		}
	}()
}

func (s *CalculatorService) runFeed(ctx context.Context) error {
	src, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if s.settings.Clone().FeedSource == models.FeedNightscout {
		s.hydrateHistory(ctx)
	}
	return src.Run(ctx)
}

// feedStopped forgets the feed started as generation gen, unless a newer one replaced it
func (s *CalculatorService) feedStopped(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedGen == gen && s.stopFeed != nil {
		s.stopFeed()
		s.stopFeed = nil
	}
}

func (s *CalculatorService) feedError(err error) {
	s.logger.Error("glucose feed failed", "feed", s.settings.Clone().FeedSource, "error", err)

	s.mu.RLock()
	status := s.lastStatus
	s.mu.RUnlock()
	if status == nil {
		s.applyFrame(s.icon.Error(err))
	}
	s.publish(EventGlucoseError, err.Error())
}

// onReading runs for every new reading stored by the feed
func (s *CalculatorService) onReading(r models.SensorReading) {
	status := models.NewGlucoseStatus(r, s.settings, s.now())

	s.mu.Lock()
	s.lastStatus = status
	s.mu.Unlock()

	s.applyFrame(s.icon.UpdateStatus(status))

	if err := s.notifier.CheckAndNotify(status); err != nil {
		s.logger.Warn("notification failed", "error", err)
	}
	s.publish(EventGlucoseUpdate, status)
}

// showRecommendation is the advice sink for the tray and the frontend
func (s *CalculatorService) showRecommendation(_ context.Context, res *advice.Result) error {
	if frame, ok := s.icon.SetRecommendation(res); ok {
		s.applyFrame(frame)
	}
	s.publish(EventRecommendation, res)
	return nil
}

// refreshLoop ages the shown reading so the tray turns stale without new data
func (s *CalculatorService) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *CalculatorService) refresh() {
	r, ok := s.latest.Get()
	if !ok {
		return
	}
	status := models.NewGlucoseStatus(r, s.settings, s.now())

	s.mu.Lock()
	s.lastStatus = status
	s.mu.Unlock()

	s.applyFrame(s.icon.Refresh(status))
	s.publish(EventGlucoseUpdate, status)
}

// hydrateHistory fills the sparkline with the last two hours from Nightscout
func (s *CalculatorService) hydrateHistory(ctx context.Context) {
	cfg := s.settings.Clone()
	client := nightscout.NewClient(cfg.NightscoutURL, cfg.APISecret, cfg.APIToken, cfg.UseToken)

	now := s.now()
	entries, err := client.GetEntries(ctx, now.Add(-historyWindow), now, 24)
	if err != nil {
		s.logger.Warn("hydrating history", "error", err)
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date < entries[j].Date
	})

	// the newest entry arrives through the poller
	if len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}
	for i := range entries {
		status := models.NewGlucoseStatus(models.SensorReading{
			Glucose:   float64(entries[i].SGV),
			Timestamp: entries[i].Date,
		}, s.settings, s.now())
		s.icon.UpdateStatus(status)
	}
}

// Public methods for binding

// GetSettings returns a copy of the current settings
func (s *CalculatorService) GetSettings() *models.Settings {
	return s.settings.Clone()
}

// SaveSettings validates, stores and applies new settings
func (s *CalculatorService) SaveSettings(settings *models.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	previous := s.settings.Clone()
	s.settings.Update(settings)
	if err := s.settings.Save(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	s.notifier.UpdateSettings(s.settings)
	if frame, ok := s.icon.UpdateSettings(s.settings); ok {
		s.applyFrame(frame)
	}

	if previous.AutoStart != settings.AutoStart {
		if err := setAutoStart(settings.AutoStart); err != nil {
			s.logger.Warn("updating autostart", "enabled", settings.AutoStart, "error", err)
		}
	}

	if s.settings.FeedConfigured() && (feedChanged(previous, settings) || !s.feedRunning()) {
		s.restartFeed()
	}
	return nil
}

var setAutoStart = func(enabled bool) error {
	entry, err := autostart.New()
	if err != nil {
		return err
	}
	return entry.Set(enabled)
}

func feedChanged(a, b *models.Settings) bool {
	return a.FeedSource != b.FeedSource ||
		a.NightscoutURL != b.NightscoutURL ||
		a.APISecret != b.APISecret ||
		a.APIToken != b.APIToken ||
		a.UseToken != b.UseToken ||
		a.MQTTBroker != b.MQTTBroker ||
		a.MQTTUsername != b.MQTTUsername ||
		a.MQTTPassword != b.MQTTPassword ||
		a.MQTTTopic != b.MQTTTopic ||
		a.RefreshInterval != b.RefreshInterval
}

func (s *CalculatorService) feedRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopFeed != nil
}

// GetCurrentStatus returns the last glucose status, or nil
func (s *CalculatorService) GetCurrentStatus() *models.GlucoseStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

// GetLastRecommendation returns the last computed result, or nil
func (s *CalculatorService) GetLastRecommendation() *advice.Result {
	return s.advice.Last()
}

// Calculate computes a recommendation for the latest reading
func (s *CalculatorService) Calculate(targetGlucose, bodyWeight float64) (*advice.Result, error) {
	return s.advice.Calculate(s.context(), targetGlucose, bodyWeight)
}

// CalculateNow uses the configured target and body weight
func (s *CalculatorService) CalculateNow() (*advice.Result, error) {
	return s.advice.CalculateDefault(s.context())
}

// RecommendationText formats a result for display, including the disclaimer
func (s *CalculatorService) RecommendationText(res *advice.Result) string {
	return display.Result(res, s.settings.Clone().Unit, s.now())
}

// SubmitReading stores a manually entered reading (mg/dL, delta per 5 min)
func (s *CalculatorService) SubmitReading(glucose, delta float64) error {
	r := models.SensorReading{
		Glucose:   glucose,
		Timestamp: s.now().UnixMilli(),
		Delta:     delta,
		Slope:     delta / 5,
		Source:    "manual",
	}
	if !r.Valid() {
		return fmt.Errorf("%w %v", advice.ErrInvalidReading, glucose)
	}
	if !s.latest.Set(r) {
		return feed.ErrStale
	}
	return nil
}

// TestConnection checks the configured Nightscout server
func (s *CalculatorService) TestConnection() error {
	cfg := s.settings.Clone()
	if cfg.FeedSource != models.FeedNightscout {
		return fmt.Errorf("feed %q has no connection test", cfg.FeedSource)
	}
	client := nightscout.NewClient(cfg.NightscoutURL, cfg.APISecret, cfg.APIToken, cfg.UseToken)
	ctx := s.context()
	if err := client.TestConnection(ctx); err != nil {
		return err
	}
	// the status endpoint is public; entries need read access
	if _, err := client.GetCurrentEntry(ctx); err != nil {
		return fmt.Errorf("reading entries: %w", err)
	}
	return nil
}

// SendTestNotification shows a test notification
func (s *CalculatorService) SendTestNotification() error {
	return s.notifier.SendTestNotification()
}

func (s *CalculatorService) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}
