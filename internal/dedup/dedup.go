// Package dedup drops messages that were already seen within a time window
package dedup

import (
	"sync"
	"time"
)

// Deduper remembers message keys for a TTL
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

// New creates a deduper. Non-positive arguments fall back to 10 minutes and 10000 keys.
func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time), now: time.Now}
}

// ShouldProcess returns false if key was seen within the TTL. Empty keys are always processed.
func (d *Deduper) ShouldProcess(key string) bool {
	if key == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	d.seen[key] = now.Add(d.ttl)

	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

// Len returns the number of remembered keys
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evict drops expired keys, then the oldest ones until the map fits
func (d *Deduper) evict(now time.Time) {
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	for len(d.seen) > d.max {
		var oldestKey string
		var oldest time.Time
		for k, exp := range d.seen {
			if oldestKey == "" || exp.Before(oldest) {
				oldestKey, oldest = k, exp
			}
		}
		delete(d.seen, oldestKey)
	}
}
