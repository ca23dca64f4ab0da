// Package cache keeps the set of post ids the worker has already handled.
package cache

import (
	"sync"
	"time"
)

type Entry struct {
	PostID    string    `json:"post_id"`
	EntityID  string    `json:"entity_id,omitempty"`
	State     string    `json:"state"`
	HandledAt time.Time `json:"handled_at"`
}

type Ledger struct {
	mu            sync.RWMutex
	entries       map[string]Entry
	retention     time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	closeOnce     sync.Once
}

func New(retention time.Duration) *Ledger {
	return newLedger(retention, time.Now, time.Hour)
}

func newLedger(retention time.Duration, now func() time.Time, sweepEvery time.Duration) *Ledger {
	l := &Ledger{
		entries:   make(map[string]Entry),
		retention: retention,
		now:       now,
		stopChan:  make(chan struct{}),
	}

	l.cleanupTicker = time.NewTicker(sweepEvery)
	go l.cleanup()

	return l
}

func (l *Ledger) Record(postID, entityID, state string) {
	if postID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[postID] = Entry{PostID: postID, EntityID: entityID, State: state, HandledAt: l.now()}
}

// Seen reports whether postID was handled within the retention window.
func (l *Ledger) Seen(postID string) bool {
	_, ok := l.Get(postID)
	return ok
}

func (l *Ledger) Get(postID string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[postID]
	if !ok || l.expired(e) {
		return Entry{}, false
	}
	return e, true
}

func (l *Ledger) Forget(postID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, postID)
}

func (l *Ledger) expired(e Entry) bool {
	return l.retention > 0 && e.HandledAt.Before(l.now().Add(-l.retention))
}

func (l *Ledger) cleanup() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.Sweep()
		case <-l.stopChan:
			return
		}
	}
}

// Sweep drops entries older than the retention window and returns how many
// were removed.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if l.expired(e) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		l.cleanupTicker.Stop()
		close(l.stopChan)
	})
}

func (l *Ledger) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byState := make(map[string]int)
	for _, e := range l.entries {
		byState[e.State]++
	}

	return map[string]interface{}{
		"tracked_posts": len(l.entries),
		"by_state":      byState,
		"retention":     l.retention.String(),
	}
}
