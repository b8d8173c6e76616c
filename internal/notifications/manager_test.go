package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrcode/glucose-calculator/internal/advice"
	"github.com/mrcode/glucose-calculator/internal/dosing"
	"github.com/mrcode/glucose-calculator/internal/models"
)

// Test constants
const (
	testUrgentLow = "urgent_low"
	testMmolUnit  = "mmol/L"
)

type sent struct {
	title, message string
	sound          bool
	urgent         bool
}

func newTestManager(settings *models.Settings) (*Manager, *[]sent, *time.Time) {
	m := NewManager(settings)
	var out []sent
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.notify = func(title, message string, sound bool) error {
		out = append(out, sent{title: title, message: message, sound: sound})
		return nil
	}
	m.urgent = func(title, message string) error {
		out = append(out, sent{title: title, message: message, sound: true, urgent: true})
		return nil
	}
	m.now = func() time.Time { return now }
	return m, &out, &now
}

func recommendationResult(t *testing.T) *advice.Result {
	t.Helper()
	rec, err := dosing.Calculate(65, 100, 70, -10, dosing.TrendFall)
	if err != nil {
		t.Fatalf("Calculate() error: %v", err)
	}
	return &advice.Result{
		Reading:        models.SensorReading{Glucose: 65, Delta: -10, Slope: -2.5},
		Trend:          dosing.TrendFall,
		TargetGlucose:  100,
		Recommendation: rec,
	}
}

func TestManager_shouldAlert(t *testing.T) {
	settings := models.DefaultSettings()
	manager := NewManager(settings)

	tests := []struct {
		name     string
		status   string
		stale    bool
		expected string
	}{
		{"Urgent low enabled", "urgent_low", false, "urgent_low"},
		{"Low enabled", "low", false, "low"},
		{"High is not alerted", "high", false, ""},
		{"Normal", "normal", false, ""},
		{"Stale low", "low", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &models.GlucoseStatus{Status: tt.status, IsStale: tt.stale}
			result := manager.shouldAlert(status)
			if result != tt.expected {
				t.Errorf("shouldAlert() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestManager_shouldAlert_Disabled(t *testing.T) {
	settings := models.DefaultSettings()
	settings.EnableLowAlert = false
	manager := NewManager(settings)

	status := &models.GlucoseStatus{Status: "low"}
	if result := manager.shouldAlert(status); result != "" {
		t.Errorf("shouldAlert() = %s, want empty (disabled)", result)
	}

	status = &models.GlucoseStatus{Status: testUrgentLow}
	if result := manager.shouldAlert(status); result != testUrgentLow {
		t.Errorf("shouldAlert() = %s, want %s", result, testUrgentLow)
	}
}

func TestManager_formatNotification(t *testing.T) {
	settings := models.DefaultSettings()
	manager := NewManager(settings)

	tests := []struct {
		alertType     string
		expectedTitle string
	}{
		{"urgent_low", "⚠️ URGENT LOW GLUCOSE"},
		{"low", "⬇️ Low Glucose"},
	}

	status := &models.GlucoseStatus{Value: 60, Trend: "→"}

	for _, tt := range tests {
		t.Run(tt.alertType, func(t *testing.T) {
			title, message := manager.formatNotification(status, tt.alertType)
			if title != tt.expectedTitle {
				t.Errorf("title = %s, want %s", title, tt.expectedTitle)
			}
			if !strings.Contains(message, "60 mg/dL") {
				t.Errorf("message = %q, want value in mg/dL", message)
			}
		})
	}
}

func TestManager_formatNotification_MmolL(t *testing.T) {
	settings := models.DefaultSettings()
	settings.Unit = testMmolUnit
	manager := NewManager(settings)

	status := &models.GlucoseStatus{Value: 100, Trend: "→"}

	_, message := manager.formatNotification(status, "low")
	if !strings.Contains(message, "5.5") {
		t.Errorf("Message should contain mmol/L value, got: %s", message)
	}
}

func TestManager_CheckAndNotify_Repeat(t *testing.T) {
	settings := models.DefaultSettings()
	manager, out, now := newTestManager(settings)
	status := &models.GlucoseStatus{Status: "low", Value: 65, Trend: "↓"}

	for i := 0; i < 3; i++ {
		if err := manager.CheckAndNotify(status); err != nil {
			t.Fatalf("CheckAndNotify() error: %v", err)
		}
	}
	if len(*out) != 1 {
		t.Fatalf("sent %d notifications, want 1 within repeat window", len(*out))
	}
	if !(*out)[0].sound {
		t.Error("sound alerts enabled but notification was silent")
	}
	if (*out)[0].urgent {
		t.Error("low alert sent as urgent")
	}

	*now = now.Add(16 * time.Minute)
	_ = manager.CheckAndNotify(status)
	if len(*out) != 2 {
		t.Errorf("sent %d notifications, want 2 after repeat window", len(*out))
	}
}

func TestManager_CheckAndNotify_NoRepeat(t *testing.T) {
	settings := models.DefaultSettings()
	settings.RepeatAlertMinutes = 0
	manager, out, now := newTestManager(settings)
	status := &models.GlucoseStatus{Status: "urgent_low", Value: 50}

	_ = manager.CheckAndNotify(status)
	*now = now.Add(time.Hour)
	_ = manager.CheckAndNotify(status)

	if len(*out) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(*out))
	}
	if !(*out)[0].urgent {
		t.Error("urgent low was not sent as an urgent notification")
	}
}

func TestManager_Record(t *testing.T) {
	settings := models.DefaultSettings()
	manager, out, _ := newTestManager(settings)

	res := recommendationResult(t)
	if err := manager.Record(context.Background(), res); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if len(*out) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(*out))
	}

	n := (*out)[0]
	if !strings.HasPrefix(n.title, "🍬 Take ") || !strings.Contains(n.title, "g dextrose") {
		t.Errorf("title = %q", n.title)
	}
	for _, want := range []string{"65 mg/dL", "100 mg/dL", "banana", "Falling trend"} {
		if !strings.Contains(n.message, want) {
			t.Errorf("message missing %q: %q", want, n.message)
		}
	}

	_ = manager.Record(context.Background(), &advice.Result{Trend: dosing.TrendStable})
	if len(*out) != 1 {
		t.Error("result without correction should not notify")
	}
}

func TestManager_Record_Disabled(t *testing.T) {
	settings := models.DefaultSettings()
	settings.EnableRecommendAlerts = false
	manager, out, _ := newTestManager(settings)

	_ = manager.Record(context.Background(), recommendationResult(t))
	if len(*out) != 0 {
		t.Errorf("sent %d notifications, want 0", len(*out))
	}
}

func TestManager_NotifyError(t *testing.T) {
	manager, _, _ := newTestManager(models.DefaultSettings())
	manager.notify = func(string, string, bool) error { return errors.New("no dbus") }

	if err := manager.Record(context.Background(), recommendationResult(t)); err == nil {
		t.Fatal("Record() error = nil, want error")
	}
	if _, ok := manager.lastAlertTime[alertRecommendation]; ok {
		t.Error("failed notification should not start the repeat window")
	}
}

func TestManager_ClearAlertState(t *testing.T) {
	settings := models.DefaultSettings()
	manager := NewManager(settings)

	manager.lastAlertTime["low"] = time.Now()
	manager.lastAlertTime["recommendation"] = time.Now()

	manager.ClearAlertState("low")
	if _, ok := manager.lastAlertTime["low"]; ok {
		t.Error("low alert should be cleared")
	}
	if _, ok := manager.lastAlertTime["recommendation"]; !ok {
		t.Error("recommendation alert should still exist")
	}

	manager.lastAlertTime["low"] = time.Now()
	manager.ClearAlertState("")
	if len(manager.lastAlertTime) != 0 {
		t.Error("All alerts should be cleared")
	}
}

func TestManager_UpdateSettings(t *testing.T) {
	settings := models.DefaultSettings()
	manager := NewManager(settings)

	newSettings := models.DefaultSettings()
	newSettings.Unit = testMmolUnit

	manager.UpdateSettings(newSettings)

	if manager.settings.Unit != testMmolUnit {
		t.Error("Settings were not updated")
	}
}
