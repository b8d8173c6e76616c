// Package notifications handles desktop notifications for low glucose and dose recommendations
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/display"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Alert type constants
const (
	alertUrgentLow      = "urgent_low"
	alertLow            = "low"
	alertRecommendation = "recommendation"
)

const appName = "Glucose Calculator"

// Manager sends glucose alerts and recommendation notifications with repeat suppression
type Manager struct {
	settings      *models.Settings
	lastAlertTime map[string]time.Time
	mu            sync.Mutex

	notify func(title, message string, sound bool) error
	urgent func(title, message string) error
	now    func() time.Time
}

// NewManager creates a new notification manager
func NewManager(settings *models.Settings) *Manager {
	return &Manager{
		settings:      settings,
		lastAlertTime: make(map[string]time.Time),
		notify:        sendNotification,
		urgent:        sendUrgent,
		now:           time.Now,
	}
}

// UpdateSettings updates the settings reference
func (m *Manager) UpdateSettings(settings *models.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
}

// CheckAndNotify sends a low alert for status if one is due
func (m *Manager) CheckAndNotify(status *models.GlucoseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alertType := m.shouldAlert(status)
	if alertType == "" {
		return nil
	}

	title, message := m.formatNotification(status, alertType)
	return m.send(alertType, title, message)
}

// Record implements advice.Sink: a needed correction becomes a notification
func (m *Manager) Record(_ context.Context, res *advice.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.settings.EnableRecommendAlerts || !res.NeedsCorrection() {
		return nil
	}

	title, message := m.formatRecommendation(res)
	return m.send(alertRecommendation, title, message)
}

// send delivers the notification unless the same alert type fired recently.
// The caller must hold m.mu.
func (m *Manager) send(alertType, title, message string) error {
	if lastTime, ok := m.lastAlertTime[alertType]; ok {
		if m.settings.RepeatAlertMinutes > 0 {
			repeatDuration := time.Duration(m.settings.RepeatAlertMinutes) * time.Minute
			if m.now().Sub(lastTime) < repeatDuration {
				return nil
			}
		} else {
			// No repeat, only alert once per status change
			return nil
		}
	}

	var err error
	if alertType == alertUrgentLow {
		err = m.urgent(title, message)
	} else {
		err = m.notify(title, message, m.settings.EnableSoundAlerts)
	}
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}

	m.lastAlertTime[alertType] = m.now()
	return nil
}

// shouldAlert determines if an alert should be sent
func (m *Manager) shouldAlert(status *models.GlucoseStatus) string {
	if status.IsStale {
		return ""
	}
	switch status.Status {
	case alertUrgentLow:
		if m.settings.EnableUrgentLowAlert {
			return alertUrgentLow
		}
	case alertLow:
		if m.settings.EnableLowAlert {
			return alertLow
		}
	}
	return ""
}

// formatNotification creates the notification title and message
func (m *Manager) formatNotification(status *models.GlucoseStatus, alertType string) (string, string) {
	valueStr := display.Glucose(status.Value, m.settings.Unit)

	switch alertType {
	case alertUrgentLow:
		return "⚠️ URGENT LOW GLUCOSE", fmt.Sprintf("Glucose is critically low: %s %s", valueStr, status.Trend)
	case alertLow:
		return "⬇️ Low Glucose", fmt.Sprintf("Glucose is low: %s %s", valueStr, status.Trend)
	}
	return "", ""
}

// formatRecommendation creates the title and body for a recommendation
func (m *Manager) formatRecommendation(res *advice.Result) (string, string) {
	rec := res.Recommendation
	title := fmt.Sprintf("🍬 Take %.1f g dextrose", rec.DextroseGrams)

	message := fmt.Sprintf("%s → %s\n%s",
		display.Reading(res.Reading, m.settings.Unit),
		display.Glucose(res.TargetGlucose, m.settings.Unit),
		display.Summary(res),
	)
	if rec.TrendNote != "" {
		message += "\n" + rec.TrendNote
	}
	if res.Stale {
		message += "\n⚠ Reading is stale"
	}
	return title, message
}

// ClearAlertState clears the alert state for a specific type or all types
func (m *Manager) ClearAlertState(alertType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alertType == "" {
		m.lastAlertTime = make(map[string]time.Time)
	} else {
		delete(m.lastAlertTime, alertType)
	}
}

// SendTestNotification sends a test notification
func (m *Manager) SendTestNotification() error {
	return m.notify(appName, "Test notification - alerts are working!", false)
}

// sendNotification uses beeep for cross-platform notifications; Alert also plays a sound
func sendNotification(title, message string, sound bool) error {
	if sound {
		return beeep.Alert(title, message, "")
	}
	return beeep.Notify(title, message, "")
}
