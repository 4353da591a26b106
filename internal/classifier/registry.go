package classifier

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tabguard-ai/tabguard/internal/store"
)

// Classification outcomes.
const (
	ClassKnown     = "known"
	ClassHeuristic = "heuristic"
	ClassUnknown   = "unknown"
)

// Record risk labels.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Record is the classification outcome for one service bucket key.
// Later classifications for the same key overwrite earlier ones.
type Record struct {
	Origin         string    `json:"origin"`
	URL            string    `json:"url"`
	KnownProvider  string    `json:"known_provider,omitempty"`
	IsAI           bool      `json:"is_ai"`
	Reason         string    `json:"reason"`
	Classification string    `json:"classification"`
	Risk           string    `json:"risk"`
	DataTypes      []string  `json:"data_types"`
	Explanation    string    `json:"explanation"`
	LastSeen       time.Time `json:"last_seen"`
}

// BucketKeyFromURL coarsens a URL to origin plus first path segment.
// Unparsable URLs fall back to the raw string.
func BucketKeyFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	seg := ""
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			seg = part
			break
		}
	}
	return u.Scheme + "://" + u.Host + "/" + seg
}

// SeenHostWindow is how long a host stays "seen" for the unknown-host
// heuristic.
const SeenHostWindow = 6 * time.Hour

// Registry holds classified service records and the seen-hosts map.
// Both persist best-effort; memory stays authoritative.
type Registry struct {
	mu      sync.Mutex
	records map[string]Record
	seen    map[string]time.Time

	st  store.Store
	now func() time.Time
}

// NewRegistry loads both persisted maps. Store failures start empty.
func NewRegistry(ctx context.Context, st store.Store, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{
		records: make(map[string]Record),
		seen:    make(map[string]time.Time),
		st:      st,
		now:     now,
	}
	r.restore(ctx)
	return r
}

// Save stores rec under its bucket key and persists the snapshot.
func (r *Registry) Save(ctx context.Context, rec Record) {
	r.mu.Lock()
	r.records[BucketKeyFromURL(rec.URL)] = rec
	r.mu.Unlock()
	r.persistRecords(ctx)
}

// ForOrigin returns this origin's records, most recent first.
func (r *Registry) ForOrigin(origin string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Origin == origin {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Lookup returns the record stored for a URL's bucket key.
func (r *Registry) Lookup(raw string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[BucketKeyFromURL(raw)]
	return rec, ok
}

// SeenRecently reports whether host appeared within SeenHostWindow.
func (r *Registry) SeenRecently(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.seen[host]
	return ok && r.now().Sub(ts) <= SeenHostWindow
}

// MarkSeen records a sighting of host, pruning stale entries and
// persisting the map.
func (r *Registry) MarkSeen(ctx context.Context, host string) {
	if host == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	r.seen[host] = now
	for h, ts := range r.seen {
		if now.Sub(ts) > SeenHostWindow {
			delete(r.seen, h)
		}
	}
	r.mu.Unlock()
	r.persistSeen(ctx)
}

func (r *Registry) restore(ctx context.Context) {
	if r.st == nil {
		return
	}
	if raw, err := r.st.Get(ctx, store.KeyServices); err == nil && raw != nil {
		var records map[string]Record
		if json.Unmarshal(raw, &records) == nil {
			r.records = records
		}
	}
	if raw, err := r.st.Get(ctx, store.KeySeenHosts); err == nil && raw != nil {
		var seen map[string]time.Time
		if json.Unmarshal(raw, &seen) == nil {
			now := r.now()
			for h, ts := range seen {
				if now.Sub(ts) > SeenHostWindow {
					delete(seen, h)
				}
			}
			r.seen = seen
		}
	}
}

func (r *Registry) persistRecords(ctx context.Context) {
	if r.st == nil {
		return
	}
	r.mu.Lock()
	raw, err := json.Marshal(r.records)
	r.mu.Unlock()
	if err != nil {
		return
	}
	if err := r.st.Set(ctx, store.KeyServices, raw); err != nil {
		log.Printf("classifier: service snapshot failed: %v", err)
	}
}

func (r *Registry) persistSeen(ctx context.Context) {
	if r.st == nil {
		return
	}
	r.mu.Lock()
	raw, err := json.Marshal(r.seen)
	r.mu.Unlock()
	if err != nil {
		return
	}
	if err := r.st.Set(ctx, store.KeySeenHosts, raw); err != nil {
		log.Printf("classifier: seen-hosts snapshot failed: %v", err)
	}
}
