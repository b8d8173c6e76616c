// Package models contains data structures used throughout the application
package models

import (
	"math"
	"time"

	"github.com/mrcode/glucose-calculator/internal/dosing"
)

// mgdlPerMmol converts between mg/dL and mmol/L
const mgdlPerMmol = 18.0182

// DefaultStaleMinutes is the age after which a reading is no longer current
const DefaultStaleMinutes = 10

// SensorReading is one CGM sample as delivered by a feed
type SensorReading struct {
	Glucose   float64 `json:"glucose"`   // mg/dL
	Timestamp int64   `json:"timestamp"` // Unix timestamp in milliseconds
	Delta     float64 `json:"delta"`     // mg/dL change over the last 5 minutes
	Slope     float64 `json:"slope"`     // mg/dL per minute
	Source    string  `json:"source,omitempty"`
}

// Time returns the time of the reading
func (r *SensorReading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Age returns how old the reading is relative to now
func (r *SensorReading) Age(now time.Time) time.Duration {
	return now.Sub(r.Time())
}

// IsRecent reports whether the reading is younger than maxAge
func (r *SensorReading) IsRecent(now time.Time, maxAge time.Duration) bool {
	return r.Timestamp > 0 && r.Age(now) < maxAge
}

// Valid reports whether the reading carries a usable glucose value
func (r *SensorReading) Valid() bool {
	return r.Glucose > 0 && !math.IsNaN(r.Glucose) && !math.IsInf(r.Glucose, 0)
}

// ValueMmolL returns the glucose value in mmol/L
func (r *SensorReading) ValueMmolL() float64 {
	return ToMmol(r.Glucose)
}

// ToMmol converts mg/dL to mmol/L
func ToMmol(mgdl float64) float64 {
	return mgdl / mgdlPerMmol
}

// ToMgdl converts mmol/L to mg/dL
func ToMgdl(mmol float64) float64 {
	return mmol * mgdlPerMmol
}

// GlucoseEntry represents a single glucose reading from Nightscout
type GlucoseEntry struct {
	ID        string `json:"_id"`
	SGV       int    `json:"sgv"`  // Sensor glucose value in mg/dL
	Date      int64  `json:"date"` // Unix timestamp in milliseconds
	DateStr   string `json:"dateString"`
	Trend     int    `json:"trend"`     // Trend direction (1-7)
	Direction string `json:"direction"` // Trend direction as string
	Device    string `json:"device"`
	Type      string `json:"type"`
}

// Time returns the time of the glucose entry
func (g *GlucoseEntry) Time() time.Time {
	return time.UnixMilli(g.Date)
}

// ValueMmolL returns the glucose value in mmol/L
func (g *GlucoseEntry) ValueMmolL() float64 {
	return ToMmol(float64(g.SGV))
}

// ReadingFromEntries builds a sensor reading from the newest entries, newest first.
// Delta is normalised to a five minute window; slope is delta per minute.
func ReadingFromEntries(entries []GlucoseEntry, source string) (SensorReading, bool) {
	if len(entries) == 0 || entries[0].SGV <= 0 {
		return SensorReading{}, false
	}

	latest := entries[0]
	reading := SensorReading{
		Glucose:   float64(latest.SGV),
		Timestamp: latest.Date,
		Source:    source,
	}

	if len(entries) > 1 {
		prev := entries[1]
		minutes := float64(latest.Date-prev.Date) / float64(time.Minute/time.Millisecond)
		if prev.SGV > 0 && minutes > 0 {
			perMinute := float64(latest.SGV-prev.SGV) / minutes
			reading.Slope = perMinute
			reading.Delta = perMinute * 5
		}
	}

	return reading, true
}

// GlucoseStatus represents the current glucose status for display
type GlucoseStatus struct {
	Value        float64   `json:"value"`     // mg/dL
	ValueMmol    float64   `json:"valueMmol"` // mmol/L
	Trend        string    `json:"trend"`     // Arrow character
	Time         time.Time `json:"time"`
	Delta        float64   `json:"delta"`
	Status       string    `json:"status"` // "normal", "high", "low", "urgent_high", "urgent_low"
	StaleMinutes int       `json:"staleMinutes"`
	IsStale      bool      `json:"isStale"`
}

// NewGlucoseStatus builds the display status of a reading
func NewGlucoseStatus(r SensorReading, settings *Settings, now time.Time) *GlucoseStatus {
	age := r.Age(now)
	return &GlucoseStatus{
		Value:        r.Glucose,
		ValueMmol:    r.ValueMmolL(),
		Trend:        dosing.Classify(r.Slope).Arrow(),
		Time:         r.Time(),
		Delta:        r.Delta,
		Status:       settings.GetGlucoseStatus(r.Glucose),
		StaleMinutes: int(age.Minutes()),
		IsStale:      !r.IsRecent(now, settings.StaleAfter()),
	}
}

// ServerStatus represents the Nightscout server status
type ServerStatus struct {
	Status     string         `json:"status"`
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	ServerTime string         `json:"serverTime"`
	APIEnabled bool           `json:"apiEnabled"`
	Settings   ServerSettings `json:"settings,omitempty"`
}

// ServerSettings contains Nightscout server settings
type ServerSettings struct {
	Units      string     `json:"units"`
	Thresholds Thresholds `json:"thresholds,omitempty"`
}

// Thresholds contains glucose threshold settings
type Thresholds struct {
	BGHigh         int `json:"bgHigh"`
	BGLow          int `json:"bgLow"`
	BGTargetTop    int `json:"bgTargetTop"`
	BGTargetBottom int `json:"bgTargetBottom"`
}
