package services

import (
	"sync"
	"time"
)

// Deduplicator collapses the repeated detections a continuous decoder
// emits for one physical scan into a single logical scan event, and
// keeps a second scan out of the pipeline while one is in flight.
type Deduplicator struct {
	mu         sync.Mutex
	window     time.Duration
	lastCode   string
	lastTime   time.Time
	processing bool
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{window: window}
}

// ShouldProcess reports whether the scan may enter the pipeline.
// Rejections are silent: a repeat of the last code inside the window,
// or any code while a prior scan is still processing. On acceptance
// the processing lock is taken; the caller must Release it.
func (d *Deduplicator) ShouldProcess(code string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if code == d.lastCode && now.Sub(d.lastTime) < d.window {
		return false
	}
	if d.processing {
		return false
	}

	d.processing = true
	d.lastCode = code
	d.lastTime = now
	return true
}

// Release frees the processing lock. Callers delay this slightly past
// operation completion so camera jitter cannot slip a second scan in.
func (d *Deduplicator) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processing = false
}
