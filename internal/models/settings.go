// Package models contains data structures used throughout the application
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Feed sources
const (
	FeedMQTT       = "mqtt"
	FeedNightscout = "nightscout"
)

// Settings contains all application settings
type Settings struct {
	mu sync.RWMutex `json:"-"`

	// Feed settings
	FeedSource string `json:"feedSource"` // "mqtt" or "nightscout"

	NightscoutURL string `json:"nightscoutUrl"`
	APISecret     string `json:"apiSecret"` // Plain API secret (will be hashed)
	APIToken      string `json:"apiToken"`
	UseToken      bool   `json:"useToken"`

	MQTTBroker   string `json:"mqttBroker"` // tcp://host:port
	MQTTUsername string `json:"mqttUsername"`
	MQTTPassword string `json:"mqttPassword"`
	MQTTTopic    string `json:"mqttTopic"`

	// Calculator settings
	TargetGlucose float64 `json:"targetGlucose"` // mg/dL
	BodyWeight    float64 `json:"bodyWeight"`    // kg, 0 = not set
	AutoRecommend bool    `json:"autoRecommend"` // recommend automatically on low readings

	// Display settings
	Unit            string `json:"unit"`            // "mg/dL" or "mmol/L"
	RefreshInterval int    `json:"refreshInterval"` // Seconds (30-600)
	StaleMinutes    int    `json:"staleMinutes"`

	// Glucose thresholds (in mg/dL, converted for display)
	TargetLow  int `json:"targetLow"`
	TargetHigh int `json:"targetHigh"`
	UrgentLow  int `json:"urgentLow"`
	UrgentHigh int `json:"urgentHigh"`

	// Alert settings
	EnableLowAlert        bool `json:"enableLowAlert"`
	EnableUrgentLowAlert  bool `json:"enableUrgentLowAlert"`
	EnableRecommendAlerts bool `json:"enableRecommendAlerts"`
	EnableSoundAlerts     bool `json:"enableSoundAlerts"`
	RepeatAlertMinutes    int  `json:"repeatAlertMinutes"` // 0 = no repeat

	// General
	AutoStart bool `json:"autoStart"`
}

// DefaultSettings returns settings with default values
func DefaultSettings() *Settings {
	return &Settings{
		FeedSource: FeedMQTT,
		MQTTBroker: "tcp://localhost:1883",
		MQTTTopic:  "xdrip/bg_estimate",

		TargetGlucose: 100,
		AutoRecommend: true,

		Unit:            "mg/dL",
		RefreshInterval: 60,
		StaleMinutes:    DefaultStaleMinutes,

		TargetLow:  70,
		TargetHigh: 180,
		UrgentLow:  55,
		UrgentHigh: 250,

		EnableLowAlert:        true,
		EnableUrgentLowAlert:  true,
		EnableRecommendAlerts: true,
		EnableSoundAlerts:     true,
		RepeatAlertMinutes:    15,
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	appDir := filepath.Join(configDir, "glucose-calculator")
	if err := os.MkdirAll(appDir, 0750); err != nil {
		return "", err
	}

	return appDir, nil
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load loads settings from disk
func (s *Settings) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) //nolint:gosec // Config path is controlled by the app, not user input
	if err != nil {
		if os.IsNotExist(err) {
			s.copySettingsFields(DefaultSettings())
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing settings: %w", err)
	}

	return nil
}

// Save saves settings to disk
func (s *Settings) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Clone creates a copy of the settings
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Settings{}
	clone.copySettingsFields(s)
	return clone
}

// Update updates settings from another Settings object
func (s *Settings) Update(other *Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	s.copySettingsFields(other)
}

// copySettingsFields copies all fields from other to s, excluding the mutex.
// The caller must hold the necessary locks.
func (s *Settings) copySettingsFields(other *Settings) {
	s.FeedSource = other.FeedSource
	s.NightscoutURL = other.NightscoutURL
	s.APISecret = other.APISecret
	s.APIToken = other.APIToken
	s.UseToken = other.UseToken
	s.MQTTBroker = other.MQTTBroker
	s.MQTTUsername = other.MQTTUsername
	s.MQTTPassword = other.MQTTPassword
	s.MQTTTopic = other.MQTTTopic
	s.TargetGlucose = other.TargetGlucose
	s.BodyWeight = other.BodyWeight
	s.AutoRecommend = other.AutoRecommend
	s.Unit = other.Unit
	s.RefreshInterval = other.RefreshInterval
	s.StaleMinutes = other.StaleMinutes
	s.TargetLow = other.TargetLow
	s.TargetHigh = other.TargetHigh
	s.UrgentLow = other.UrgentLow
	s.UrgentHigh = other.UrgentHigh
	s.EnableLowAlert = other.EnableLowAlert
	s.EnableUrgentLowAlert = other.EnableUrgentLowAlert
	s.EnableRecommendAlerts = other.EnableRecommendAlerts
	s.EnableSoundAlerts = other.EnableSoundAlerts
	s.RepeatAlertMinutes = other.RepeatAlertMinutes
	s.AutoStart = other.AutoStart
}

// IsConfigured returns true if the calculator and its feed have the minimum required settings
func (s *Settings) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BodyWeight > 0 && s.feedConfigured()
}

// FeedConfigured returns true if the selected feed has its address
func (s *Settings) FeedConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feedConfigured()
}

func (s *Settings) feedConfigured() bool {
	switch s.FeedSource {
	case FeedNightscout:
		return s.NightscoutURL != ""
	case FeedMQTT:
		return s.MQTTBroker != "" && s.MQTTTopic != ""
	}
	return false
}

// Validate checks the values the calculator and feeds depend on
func (s *Settings) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	if !positiveFinite(s.TargetGlucose) {
		errs = append(errs, fmt.Errorf("target glucose must be positive, got %v", s.TargetGlucose))
	}
	if s.BodyWeight != 0 && !positiveFinite(s.BodyWeight) {
		errs = append(errs, fmt.Errorf("body weight must be positive, got %v", s.BodyWeight))
	}
	switch s.FeedSource {
	case FeedMQTT, FeedNightscout:
	default:
		errs = append(errs, fmt.Errorf("unknown feed source %q", s.FeedSource))
	}
	if s.Unit != "mg/dL" && s.Unit != "mmol/L" {
		errs = append(errs, fmt.Errorf("unknown unit %q", s.Unit))
	}
	if s.RefreshInterval < 30 || s.RefreshInterval > 600 {
		errs = append(errs, fmt.Errorf("refresh interval must be 30-600 seconds, got %d", s.RefreshInterval))
	}
	if s.StaleMinutes <= 0 {
		errs = append(errs, fmt.Errorf("stale minutes must be positive, got %d", s.StaleMinutes))
	}
	return errors.Join(errs...)
}

// Calculator returns the target glucose and body weight under one lock
func (s *Settings) Calculator() (target, bodyWeight float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TargetGlucose, s.BodyWeight
}

// StaleAfter returns the age after which a reading is no longer current
func (s *Settings) StaleAfter() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StaleMinutes <= 0 {
		return DefaultStaleMinutes * time.Minute
	}
	return time.Duration(s.StaleMinutes) * time.Minute
}

// GetGlucoseStatus returns the status string for a glucose value
func (s *Settings) GetGlucoseStatus(mgdl float64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case mgdl <= float64(s.UrgentLow):
		return "urgent_low"
	case mgdl <= float64(s.TargetLow):
		return "low"
	case mgdl >= float64(s.UrgentHigh):
		return "urgent_high"
	case mgdl >= float64(s.TargetHigh):
		return "high"
	default:
		return "normal"
	}
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
