package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// ErrNotReserved is returned when Commit is called for a key nobody reserved
var ErrNotReserved = errors.New("ledger key not reserved")

var _ core.CooldownLedger = (*MemoryLedger)(nil)

type entry struct {
	lastSent time.Time
	inFlight bool
}

// MemoryLedger is an in-process cooldown ledger. Entries older than the
// retention window are pruned by a background task.
type MemoryLedger struct {
	entries     map[string]*entry
	mu          sync.Mutex
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewMemoryLedger creates a new in-memory ledger and starts its cleanup task.
// A non-positive cleanupFreq disables the task.
func NewMemoryLedger(logger *zap.Logger, retention, cleanupFreq time.Duration) *MemoryLedger {
	l := &MemoryLedger{
		entries:     make(map[string]*entry),
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go l.startCleanupTask()
	}

	return l
}

// Reserve claims key when no send is in flight and the last send is at
// least window before now. A last-sent time after now counts as zero elapsed.
func (l *MemoryLedger) Reserve(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &entry{inFlight: true}
		return true, nil
	}
	if e.inFlight {
		return false, nil
	}
	if !e.lastSent.IsZero() && elapsed(e.lastSent, now) < window {
		return false, nil
	}

	e.inFlight = true
	return true, nil
}

// Commit records a successful send and ends the reservation
func (l *MemoryLedger) Commit(_ context.Context, key string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !e.inFlight {
		return ErrNotReserved
	}
	e.lastSent = at
	e.inFlight = false
	return nil
}

// Release ends a reservation without recording a send
func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	if e.lastSent.IsZero() {
		delete(l.entries, key)
		return nil
	}
	e.inFlight = false
	return nil
}

// LastSent returns when an alert was last sent for key
func (l *MemoryLedger) LastSent(_ context.Context, key string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || e.lastSent.IsZero() {
		return time.Time{}, false, nil
	}
	return e.lastSent, true, nil
}

// Cleanup removes entries whose cooldown has long passed
func (l *MemoryLedger) Cleanup(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := 0
	for key, e := range l.entries {
		if e.inFlight || e.lastSent.IsZero() {
			continue
		}
		if elapsed(e.lastSent, now) > l.retention {
			delete(l.entries, key)
			pruned++
		}
	}

	l.logger.Debug("Pruned cooldown ledger", zap.Int("pruned_count", pruned), zap.Int("remaining", len(l.entries)))
	return nil
}

// Len returns the number of tracked keys
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLedger) startCleanupTask() {
	ticker := time.NewTicker(l.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.Cleanup(context.Background()); err != nil {
				l.logger.Error("Failed to prune cooldown ledger", zap.Error(err))
			}
		case <-l.stopCh:
			return
		}
	}
}

// Close stops the background cleanup task
func (l *MemoryLedger) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}

func elapsed(last, now time.Time) time.Duration {
	d := now.Sub(last)
	if d < 0 {
		return 0
	}
	return d
}
