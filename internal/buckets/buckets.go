// Package buckets aggregates windowed AI-signal counters per
// (browsing context, origin) pair. Buckets live in memory, survive
// restarts through debounced snapshots into the key-value store, and
// expire after a fixed window instead of being explicitly deleted.
package buckets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tabguard-ai/tabguard/internal/store"
)

// Window lengths. Overridable through Options, fixed in production
// config unless tuning.
const (
	DefaultWindow        = 30 * time.Second
	DefaultPIIWindow     = 15 * time.Second
	DefaultDedupeWindow  = 2 * time.Second
	DefaultWriteDebounce = 500 * time.Millisecond
)

// Counts are the per-window signal counters.
type Counts struct {
	AIPost        int `json:"ai_post"`
	SSE           int `json:"sse"`
	ModelDownload int `json:"model_download"`
	Passive       int `json:"passive"`
}

// SignalBucket tracks AI-related evidence for one (context, origin)
// pair. The four counters share one window; the PII fields follow a
// separate, shorter window.
type SignalBucket struct {
	ContextID   int       `json:"context_id"`
	Origin      string    `json:"origin"`
	Counts      Counts    `json:"counts"`
	WindowStart time.Time `json:"window_start"`
	LastUpdate  time.Time `json:"last_update"`

	PIIMarks int       `json:"pii_marks,omitempty"`
	LastPII  time.Time `json:"last_pii,omitempty"`
	PIIKinds []string  `json:"pii_kinds,omitempty"`
}

// sameValue compares everything except LastUpdate, which changes on
// every call and would schedule a write even for no-op mutations.
func (b *SignalBucket) sameValue(other *SignalBucket) bool {
	if b.Counts != other.Counts ||
		b.WindowStart != other.WindowStart ||
		b.PIIMarks != other.PIIMarks ||
		!b.LastPII.Equal(other.LastPII) ||
		len(b.PIIKinds) != len(other.PIIKinds) {
		return false
	}
	for i := range b.PIIKinds {
		if b.PIIKinds[i] != other.PIIKinds[i] {
			return false
		}
	}
	return true
}

func (b *SignalBucket) clone() *SignalBucket {
	cp := *b
	cp.PIIKinds = append([]string(nil), b.PIIKinds...)
	return &cp
}

// Options configures an Aggregator. Zero values take the defaults
// above; Now defaults to time.Now so tests can pin the clock.
type Options struct {
	Window        time.Duration
	PIIWindow     time.Duration
	DedupeWindow  time.Duration
	WriteDebounce time.Duration
	Now           func() time.Time

	// OnFlush observes settled key counts after each debounced flush.
	OnFlush func(settled int)
}

// Aggregator owns the in-memory bucket table. All access goes through
// its mutex; the store is only ever written fire-and-forget, so a
// failed snapshot never disturbs the in-memory view.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[string]*SignalBucket
	dirty   map[string]time.Time // key -> last mutation; flushed once debounce elapses
	piiSeen map[string]time.Time // key|hash -> last sighting, for duplicate suppression

	st  store.Store
	opt Options
}

// NewAggregator builds an empty aggregator. Call Restore to load the
// persisted snapshot.
func NewAggregator(st store.Store, opt Options) *Aggregator {
	if opt.Window <= 0 {
		opt.Window = DefaultWindow
	}
	if opt.PIIWindow <= 0 {
		opt.PIIWindow = DefaultPIIWindow
	}
	if opt.DedupeWindow <= 0 {
		opt.DedupeWindow = DefaultDedupeWindow
	}
	if opt.WriteDebounce <= 0 {
		opt.WriteDebounce = DefaultWriteDebounce
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Aggregator{
		buckets: make(map[string]*SignalBucket),
		dirty:   make(map[string]time.Time),
		piiSeen: make(map[string]time.Time),
		st:      st,
		opt:     opt,
	}
}

// Key builds the map key for a (context, origin) pair. Context id 0
// is a valid identifier; only negative ids are rejected by callers.
func Key(contextID int, origin string) string {
	return fmt.Sprintf("%d|%s", contextID, origin)
}

// WithBucket runs mutate against the bucket for (contextID, origin),
// creating it lazily and resetting the counter window first when it
// has lapsed. The returned bucket always carries LastUpdate = now. A
// mutation that changed the bucket by value schedules a debounced
// snapshot write. Returns nil for an empty origin or negative context.
func (a *Aggregator) WithBucket(contextID int, origin string, mutate func(*SignalBucket)) *SignalBucket {
	if origin == "" || contextID < 0 {
		return nil
	}
	now := a.opt.Now()
	key := Key(contextID, origin)

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[key]
	if !ok {
		b = &SignalBucket{ContextID: contextID, Origin: origin, WindowStart: now}
	} else if now.Sub(b.WindowStart) > a.opt.Window {
		// Window lapsed: fresh counters, same identity.
		b = b.clone()
		b.Counts = Counts{}
		b.WindowStart = now
	} else {
		b = b.clone()
	}
	a.expirePII(b, now)

	before := b.clone()
	if mutate != nil {
		mutate(b)
	}
	b.LastUpdate = now
	a.buckets[key] = b
	if !b.sameValue(before) {
		a.dirty[key] = now
	}
	a.pruneLocked(now)
	return b.clone()
}

// GetActiveBucket returns the bucket only while it is inside the
// activity window; stale entries read as absent without deletion.
func (a *Aggregator) GetActiveBucket(contextID int, origin string) *SignalBucket {
	now := a.opt.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buckets[Key(contextID, origin)]
	if !ok || now.Sub(b.LastUpdate) > a.opt.Window {
		return nil
	}
	return b.clone()
}

// HasRecentActivity reports whether any context touched this origin
// within the window. Used to decide whether a second origin-level
// escalation is warranted.
func (a *Aggregator) HasRecentActivity(origin string) bool {
	now := a.opt.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.buckets {
		if b.Origin == origin && now.Sub(b.LastUpdate) <= a.opt.Window {
			return true
		}
	}
	return false
}

// MarkPII records a PII sighting for the pair. Identical hashes
// arriving inside the dedupe window are dropped (duplicate emission,
// not new evidence); otherwise the mark counter bumps, the PII window
// resets if stale, and kinds accumulate as a set. Reports whether the
// sighting was recorded.
func (a *Aggregator) MarkPII(contextID int, origin string, kinds []string, hash string) bool {
	if origin == "" || contextID < 0 {
		return false
	}
	now := a.opt.Now()
	dedupeKey := Key(contextID, origin) + "|" + hash

	a.mu.Lock()
	if last, ok := a.piiSeen[dedupeKey]; ok && now.Sub(last) < a.opt.DedupeWindow {
		a.mu.Unlock()
		return false
	}
	a.piiSeen[dedupeKey] = now
	// Old dedupe entries are useless after the window; drop them here
	// rather than running a sweeper.
	for k, t := range a.piiSeen {
		if now.Sub(t) >= a.opt.DedupeWindow {
			delete(a.piiSeen, k)
		}
	}
	a.mu.Unlock()

	a.WithBucket(contextID, origin, func(b *SignalBucket) {
		b.PIIMarks++
		b.LastPII = now
		for _, k := range kinds {
			b.PIIKinds = addKind(b.PIIKinds, k)
		}
	})
	return true
}

// PIIRecent reports whether a PII mark landed on the pair within the
// PII window. The classifier uses this to escalate correlated traffic
// without ever seeing the PII values.
func (a *Aggregator) PIIRecent(contextID int, origin string) bool {
	now := a.opt.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buckets[Key(contextID, origin)]
	if !ok || b.LastPII.IsZero() {
		return false
	}
	return now.Sub(b.LastPII) <= a.opt.PIIWindow
}

// expirePII resets the PII fields when their shorter window lapsed.
// Caller holds the lock.
func (a *Aggregator) expirePII(b *SignalBucket, now time.Time) {
	if !b.LastPII.IsZero() && now.Sub(b.LastPII) > a.opt.PIIWindow {
		b.PIIMarks = 0
		b.LastPII = time.Time{}
		b.PIIKinds = nil
	}
}

// pruneLocked drops buckets idle longer than the window. They fall
// out of the next snapshot at the same time.
func (a *Aggregator) pruneLocked(now time.Time) {
	for k, b := range a.buckets {
		if now.Sub(b.LastUpdate) > a.opt.Window {
			delete(a.buckets, k)
			delete(a.dirty, k)
		}
	}
}

// Restore loads the persisted snapshot, keeps only entries still
// inside the window, and writes the pruned map back. A store failure
// leaves the aggregator empty; in-memory state stays authoritative.
func (a *Aggregator) Restore(ctx context.Context) {
	if a.st == nil {
		return
	}
	raw, err := a.st.Get(ctx, store.KeySignalBuckets)
	if err != nil {
		log.Printf("buckets: restore failed: %v", err)
		return
	}
	if raw == nil {
		return
	}
	var persisted map[string]*SignalBucket
	if err := json.Unmarshal(raw, &persisted); err != nil {
		log.Printf("buckets: snapshot unreadable, starting empty: %v", err)
		return
	}

	now := a.opt.Now()
	a.mu.Lock()
	a.buckets = make(map[string]*SignalBucket, len(persisted))
	for k, b := range persisted {
		if b != nil && now.Sub(b.LastUpdate) <= a.opt.Window {
			a.buckets[k] = b
		}
	}
	a.mu.Unlock()

	a.persistSnapshot(ctx)
}

// FlushDue persists the snapshot if any key has been dirty for at
// least the debounce interval. A write arriving for a key restarts
// its timer, so bursts collapse into one snapshot. Returns the number
// of keys the flush settled.
func (a *Aggregator) FlushDue(ctx context.Context) int {
	now := a.opt.Now()
	a.mu.Lock()
	var due []string
	for k, t := range a.dirty {
		if now.Sub(t) >= a.opt.WriteDebounce {
			due = append(due, k)
		}
	}
	for _, k := range due {
		delete(a.dirty, k)
	}
	a.mu.Unlock()

	if len(due) == 0 {
		return 0
	}
	a.persistSnapshot(ctx)
	if a.opt.OnFlush != nil {
		a.opt.OnFlush(len(due))
	}
	return len(due)
}

// FlushAll persists immediately regardless of debounce state, for
// shutdown.
func (a *Aggregator) FlushAll(ctx context.Context) {
	a.mu.Lock()
	a.dirty = make(map[string]time.Time)
	a.mu.Unlock()
	a.persistSnapshot(ctx)
}

// RunFlusher ticks the debounce clock until ctx ends. The interval is
// half the debounce so a settled key waits at most 1.5 debounces.
func (a *Aggregator) RunFlusher(ctx context.Context) {
	interval := a.opt.WriteDebounce / 2
	if interval <= 0 {
		interval = DefaultWriteDebounce / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.FlushAll(context.Background())
			return
		case <-ticker.C:
			a.FlushDue(ctx)
		}
	}
}

// Snapshot returns a copy of the live table, for tests and debug
// surfaces.
func (a *Aggregator) Snapshot() map[string]*SignalBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*SignalBucket, len(a.buckets))
	for k, b := range a.buckets {
		out[k] = b.clone()
	}
	return out
}

func (a *Aggregator) persistSnapshot(ctx context.Context) {
	if a.st == nil {
		return
	}
	now := a.opt.Now()
	a.mu.Lock()
	a.pruneLocked(now)
	raw, err := json.Marshal(a.buckets)
	a.mu.Unlock()
	if err != nil {
		return
	}
	// Failures are swallowed: these are heuristic counters, the
	// in-memory view stays authoritative for the process lifetime.
	if err := a.st.Set(ctx, store.KeySignalBuckets, raw); err != nil {
		log.Printf("buckets: snapshot write failed: %v", err)
	}
}

func addKind(kinds []string, kind string) []string {
	if kind == "" {
		return kinds
	}
	i := sort.SearchStrings(kinds, kind)
	if i < len(kinds) && kinds[i] == kind {
		return kinds
	}
	kinds = append(kinds, "")
	copy(kinds[i+1:], kinds[i:])
	kinds[i] = kind
	return kinds
}
