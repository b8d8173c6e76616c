// Package feed receives sensor readings from MQTT broadcasts or Nightscout and keeps the latest one
package feed

import (
	"errors"
	"sync"

	"github.com/mrcode/glucose-calculator/internal/models"
)

// ErrStale is returned when a reading is not newer than the stored one
var ErrStale = errors.New("reading is not newer than the stored one")

// Listener is called after the latest reading changed
type Listener func(models.SensorReading)

// Latest holds the most recent sensor reading. Safe for concurrent use.
type Latest struct {
	mu        sync.RWMutex
	reading   models.SensorReading
	ok        bool
	listeners []Listener
}

// NewLatest creates an empty reading slot
func NewLatest() *Latest {
	return &Latest{}
}

// Set stores r unless it is invalid or not newer than the stored reading.
// It reports whether the reading was stored; listeners run only in that case.
func (l *Latest) Set(r models.SensorReading) bool {
	if !r.Valid() {
		return false
	}

	l.mu.Lock()
	if l.ok && r.Timestamp <= l.reading.Timestamp {
		l.mu.Unlock()
		return false
	}
	l.reading = r
	l.ok = true
	listeners := make([]Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(r)
	}
	return true
}

// Get returns the latest reading and whether one has been received
func (l *Latest) Get() (models.SensorReading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reading, l.ok
}

// OnUpdate registers fn to be called for every stored reading
func (l *Latest) OnUpdate(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}
