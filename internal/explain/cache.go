package explain

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tabguard-ai/tabguard/internal/checksum"
	"github.com/tabguard-ai/tabguard/internal/store"
)

// DefaultCacheCapacity bounds the LRU. The source system grew its
// cache without limit; a fixed capacity keeps a long-running process
// flat.
const DefaultCacheCapacity = 512

// Entry is one cached explanation.
type Entry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// Cache memoizes explanations keyed by a deterministic signature of
// the facts they restate. LRU with fixed capacity; persisted
// best-effort into the key-value store.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order *list.List               // front = most recent
	items map[string]*list.Element // signature -> *cacheNode

	st  store.Store
	now func() time.Time

	// OnLookup observes hit/miss outcomes when set.
	OnLookup func(hit bool)
}

type cacheNode struct {
	key   string
	entry Entry
}

// NewCache builds a cache with the given capacity (<=0 takes the
// default) and loads any persisted snapshot.
func NewCache(ctx context.Context, st store.Store, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &Cache{
		cap:   capacity,
		order: list.New(),
		items: make(map[string]*list.Element),
		st:    st,
		now:   time.Now,
	}
	c.restore(ctx)
	return c
}

// Signature derives the deterministic cache key from the restated
// facts: risk level, provider name, and the sorted distinct data
// types.
func Signature(riskLevel, providerName string, dataTypes []string) string {
	distinct := make(map[string]bool, len(dataTypes))
	for _, t := range dataTypes {
		if t != "" {
			distinct[t] = true
		}
	}
	sorted := make([]string, 0, len(distinct))
	for t := range distinct {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)
	return checksum.HashKey(riskLevel + "|" + providerName + "|" + strings.Join(sorted, ","))
}

// Get returns the cached text for a signature.
func (c *Cache) Get(signature string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[signature]
	if c.OnLookup != nil {
		c.OnLookup(ok)
	}
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheNode).entry.Text, true
}

// Put stores text under a signature and persists the snapshot
// best-effort. Evicts the least recently used entry at capacity.
func (c *Cache) Put(ctx context.Context, signature, text string) {
	c.mu.Lock()
	if el, ok := c.items[signature]; ok {
		el.Value.(*cacheNode).entry = Entry{Text: text, Timestamp: c.now()}
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&cacheNode{key: signature, entry: Entry{Text: text, Timestamp: c.now()}})
		c.items[signature] = el
		for c.order.Len() > c.cap {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheNode).key)
		}
	}
	c.mu.Unlock()
	c.persist(ctx)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) restore(ctx context.Context) {
	if c.st == nil {
		return
	}
	raw, err := c.st.Get(ctx, store.KeyExplanationCache)
	if err != nil || raw == nil {
		return
	}
	var persisted map[string]Entry
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return
	}
	// Oldest first so the most recent entries end up at the front.
	keys := make([]string, 0, len(persisted))
	for k := range persisted {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return persisted[keys[i]].Timestamp.Before(persisted[keys[j]].Timestamp)
	})
	c.mu.Lock()
	for _, k := range keys {
		el := c.order.PushFront(&cacheNode{key: k, entry: persisted[k]})
		c.items[k] = el
		for c.order.Len() > c.cap {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheNode).key)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) persist(ctx context.Context) {
	if c.st == nil {
		return
	}
	c.mu.Lock()
	snapshot := make(map[string]Entry, len(c.items))
	for k, el := range c.items {
		snapshot[k] = el.Value.(*cacheNode).entry
	}
	c.mu.Unlock()
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.st.Set(ctx, store.KeyExplanationCache, raw); err != nil {
		log.Printf("explain: cache persist failed: %v", err)
	}
}
