// Package provider holds the directory of known AI-service hostnames.
package provider

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/tabguard-ai/tabguard/internal/store"
)

// Info is what the directory knows about one hostname.
type Info struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// Directory maps exact hostnames to provider info. Read-mostly:
// seeded once if the store has nothing, then queried per request.
type Directory struct {
	mu      sync.RWMutex
	domains map[string]Info
	store   store.Store
}

// seedDomains is the built-in directory, used when the store has no
// persisted copy yet.
var seedDomains = map[string]Info{
	"api.openai.com":                    {Name: "OpenAI"},
	"chat.openai.com":                   {Name: "OpenAI Chat"},
	"api.anthropic.com":                 {Name: "Anthropic"},
	"generativelanguage.googleapis.com": {Name: "Google AI"},
	"aiplatform.googleapis.com":         {Name: "Vertex AI"},
	"gemini.google.com":                 {Name: "Google Gemini"},
	"ai.google.dev":                     {Name: "Google AI"},
	"content-vision.googleapis.com":     {Name: "Google Vision"},
	"openai.azure.com":                  {Name: "Azure OpenAI"},
	"cognitiveservices.azure.com":       {Name: "Azure Cognitive Services"},
	"api.cohere.ai":                     {Name: "Cohere"},
	"api-inference.huggingface.co":      {Name: "Hugging Face Inference"},
	"api.replicate.com":                 {Name: "Replicate"},
	"api.stability.ai":                  {Name: "Stability AI"},
}

// NewDirectory loads the directory from the store, seeding it when
// absent. Store failures fall back to the built-in seed; lookups
// must keep working without persistence.
func NewDirectory(ctx context.Context, st store.Store) *Directory {
	d := &Directory{domains: make(map[string]Info, len(seedDomains)), store: st}
	for k, v := range seedDomains {
		d.domains[k] = v
	}

	if st == nil {
		return d
	}
	raw, err := st.Get(ctx, store.KeyProviderDirectory)
	if err != nil {
		log.Printf("provider: directory load failed, using seed: %v", err)
		return d
	}
	if raw == nil {
		d.persist(ctx)
		return d
	}
	var persisted map[string]Info
	if err := json.Unmarshal(raw, &persisted); err != nil || len(persisted) == 0 {
		d.persist(ctx)
		return d
	}
	d.domains = persisted
	return d
}

// NewEmptyDirectory builds a directory without the built-in seed, for
// deployments that manage the provider list themselves. A persisted
// copy is still loaded when present.
func NewEmptyDirectory(st store.Store) *Directory {
	d := &Directory{domains: make(map[string]Info), store: st}
	if st == nil {
		return d
	}
	raw, err := st.Get(context.Background(), store.KeyProviderDirectory)
	if err != nil || raw == nil {
		return d
	}
	var persisted map[string]Info
	if err := json.Unmarshal(raw, &persisted); err == nil && len(persisted) > 0 {
		d.domains = persisted
	}
	return d
}

// Lookup returns the provider for an exact hostname match.
func (d *Directory) Lookup(host string) (Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.domains[host]
	return info, ok
}

// Add registers (or overwrites) a hostname and persists the result.
func (d *Directory) Add(ctx context.Context, host string, info Info) {
	d.mu.Lock()
	d.domains[host] = info
	d.mu.Unlock()
	d.persist(ctx)
}

// Len reports the number of known hostnames.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.domains)
}

func (d *Directory) persist(ctx context.Context) {
	if d.store == nil {
		return
	}
	d.mu.RLock()
	raw, err := json.Marshal(d.domains)
	d.mu.RUnlock()
	if err != nil {
		return
	}
	if err := d.store.Set(ctx, store.KeyProviderDirectory, raw); err != nil {
		log.Printf("provider: directory persist failed: %v", err)
	}
}
