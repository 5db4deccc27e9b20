package pushtoken

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultDiagnosticsSize = 50

type DiagnosticEntry struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
}

// Diagnostics is a bounded ring of recent failures, oldest evicted first.
type Diagnostics struct {
	mu      sync.Mutex
	entries []DiagnosticEntry
	start   int
	size    int
	now     func() time.Time
}

func NewDiagnostics(size int, now func() time.Time) *Diagnostics {
	if size <= 0 {
		size = DefaultDiagnosticsSize
	}
	if now == nil {
		now = time.Now
	}
	return &Diagnostics{size: size, now: now}
}

func (d *Diagnostics) Record(op string, err error) {
	if err == nil {
		return
	}
	zap.S().Warnw("push token operation failed", "operation", op, "error", err)

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := DiagnosticEntry{Time: d.now(), Operation: op, Error: err.Error()}
	if len(d.entries) < d.size {
		d.entries = append(d.entries, entry)
		return
	}
	d.entries[d.start] = entry
	d.start = (d.start + 1) % d.size
}

// Entries returns the recorded failures oldest first.
func (d *Diagnostics) Entries() []DiagnosticEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DiagnosticEntry, 0, len(d.entries))
	out = append(out, d.entries[d.start:]...)
	out = append(out, d.entries[:d.start]...)
	return out
}
