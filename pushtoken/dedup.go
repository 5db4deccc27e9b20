package pushtoken

import (
	"sync"
	"time"
)

// Deduper drops an event whose id matches the immediately preceding one.
// With a positive window the match only counts while it is younger than
// the window; a zero window compares ids alone.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	lastID string
	lastAt time.Time
	now    func() time.Time
}

func NewDeduper(window time.Duration, now func() time.Time) *Deduper {
	return &Deduper{window: window, now: now}
}

// Seen reports whether id is a duplicate, and records it if not.
func (d *Deduper) Seen(id string) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if id == d.lastID && (d.window <= 0 || now.Sub(d.lastAt) < d.window) {
		return true
	}
	d.lastID = id
	d.lastAt = now
	return false
}
