package reconcile

import (
	"sync"
	"time"
)

// Watermark is the timestamp below which push updates are considered
// already reflected in the base collection. It only moves when the caller
// records a successful local write, so a stale server echo of an older
// state cannot overwrite the value just written.
type Watermark struct {
	mu    sync.RWMutex
	value int64
}

func NewWatermark() *Watermark {
	return &Watermark{}
}

// Value returns the watermark in milliseconds since epoch.
func (w *Watermark) Value() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value
}

// Record advances the watermark to t. It never moves backwards.
func (w *Watermark) Record(t time.Time) {
	ms := t.UnixMilli()

	w.mu.Lock()
	defer w.mu.Unlock()
	if ms > w.value {
		w.value = ms
	}
}
