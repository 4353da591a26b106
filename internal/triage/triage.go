// Package triage assembles the engine: store, signal buckets,
// provider directory, classifier, risk scoring, PII pipeline, and
// escalation delivery, wired per configuration. The server and the
// command binary talk to an Engine, never to the parts directly.
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/tabguard-ai/tabguard/internal/buckets"
	"github.com/tabguard-ai/tabguard/internal/checksum"
	"github.com/tabguard-ai/tabguard/internal/classifier"
	"github.com/tabguard-ai/tabguard/internal/config"
	"github.com/tabguard-ai/tabguard/internal/explain"
	"github.com/tabguard-ai/tabguard/internal/notify"
	"github.com/tabguard-ai/tabguard/internal/pii"
	"github.com/tabguard-ai/tabguard/internal/provider"
	"github.com/tabguard-ai/tabguard/internal/risk"
	"github.com/tabguard-ai/tabguard/internal/store"
	"github.com/tabguard-ai/tabguard/internal/telemetry"
)

// Options injects test doubles. Zero values take production wiring.
type Options struct {
	Store       store.Store
	Paraphraser explain.Paraphraser
	Sinks       []notify.Sink
	Now         func() time.Time
}

// Engine is the assembled triage pipeline.
type Engine struct {
	cfg *config.Config

	store      store.Store
	buckets    *buckets.Aggregator
	directory  *provider.Directory
	registry   *classifier.Registry
	classifier *classifier.Classifier
	sanitizer  *pii.Sanitizer
	cache      *explain.Cache
	notifier   *notify.Notifier
	telemetry  *telemetry.Provider
	para       explain.Paraphraser

	ownsStore bool
}

// escalationRecorder wraps the notifier so the classifier's
// escalations also count in telemetry.
type escalationRecorder struct {
	notifier *notify.Notifier
	tel      *telemetry.Provider
}

func (e escalationRecorder) Escalate(ctx context.Context, origin string, level risk.Level) {
	if e.notifier.Escalate(ctx, origin, level) {
		e.tel.RecordEscalation(string(level))
	}
}

// New builds an Engine from config. Store construction failures are
// the only hard error; every runtime collaborator degrades instead.
func New(ctx context.Context, cfg *config.Config, opt Options) (*Engine, error) {
	if opt.Now == nil {
		opt.Now = time.Now
	}

	para := opt.Paraphraser
	if para == nil && cfg.Explain.Endpoint != "" {
		para = explain.NewLocalModel(cfg.Explain.Endpoint, cfg.Explain.Model,
			cfg.Explain.APIKey, cfg.Explain.ParaphraseTimeout(), 0)
	}

	st := opt.Store
	ownsStore := false
	if st == nil {
		if cfg.Store.Path == "" {
			st = store.NewMemory()
		} else {
			var err error
			st, err = store.OpenBolt(cfg.Store.Path)
			if err != nil {
				return nil, fmt.Errorf("open store: %w", err)
			}
			ownsStore = true
		}
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "tabguard",
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	agg := buckets.NewAggregator(st, buckets.Options{
		Window:        cfg.Windows.Signal(),
		PIIWindow:     cfg.Windows.PII(),
		DedupeWindow:  cfg.Windows.Dedupe(),
		WriteDebounce: cfg.Windows.WriteDebounce(),
		Now:           opt.Now,
		OnFlush:       tel.RecordBucketFlush,
	})
	agg.Restore(ctx)

	var dir *provider.Directory
	if cfg.Providers.Seed == nil || *cfg.Providers.Seed {
		dir = provider.NewDirectory(ctx, st)
	} else {
		dir = provider.NewEmptyDirectory(st)
	}

	cache := explain.NewCache(ctx, st, cfg.Explain.CacheCapacity)
	cache.OnLookup = tel.RecordCacheLookup

	sinks := opt.Sinks
	if sinks == nil {
		sinks = buildSinks(cfg.Escalation.Sinks)
	}
	notifier := notify.NewNotifier(notify.NewEmitter(notify.EmitterConfig{}, sinks), notify.Config{
		Threshold:      risk.Level(cfg.Escalation.Threshold),
		OriginCooldown: cfg.Escalation.OriginCooldown(),
		GlobalCooldown: cfg.Escalation.GlobalCooldown(),
		Activity:       agg.HasRecentActivity,
		Now:            opt.Now,
	})

	reg := classifier.NewRegistry(ctx, st, opt.Now)
	clf := classifier.New(classifier.Options{
		Directory:        dir,
		Registry:         reg,
		Aggregator:       agg,
		Cache:            cache,
		Paraphraser:      para,
		ParaphraseWindow: cfg.Explain.ParaphraseTimeout(),
		Escalator:        escalationRecorder{notifier: notifier, tel: tel},
		Now:              opt.Now,
	})

	return &Engine{
		cfg:        cfg,
		store:      st,
		buckets:    agg,
		directory:  dir,
		registry:   reg,
		classifier: clf,
		sanitizer:  pii.New(cfg.Granularity),
		cache:      cache,
		notifier:   notifier,
		telemetry:  tel,
		para:       para,
		ownsStore:  ownsStore,
	}, nil
}

func buildSinks(configs []config.SinkConfig) []notify.Sink {
	var sinks []notify.Sink
	for _, sc := range configs {
		switch sc.Type {
		case "log", "":
			sinks = append(sinks, notify.LogSink{})
		case "file_jsonl":
			s, err := notify.NewFileSink(sc.Path)
			if err != nil {
				continue
			}
			sinks = append(sinks, s)
		case "webhook":
			s, err := notify.NewWebhookSink(sc.URL, sc.Headers, sc.Timeout())
			if err != nil {
				continue
			}
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 0 {
		sinks = []notify.Sink{notify.LogSink{}}
	}
	return sinks
}

// Classify runs the classification pipeline for one network event.
func (e *Engine) Classify(ctx context.Context, ev classifier.Event) (classifier.Record, bool) {
	rec, ok := e.classifier.Classify(ctx, ev)
	if ok {
		e.telemetry.RecordClassification(rec.Classification, rec.Risk, map[string]any{
			"origin": rec.Origin,
			"is_ai":  rec.IsAI,
		})
	}
	return rec, ok
}

// ServicesForOrigin lists classified services for an origin, most
// recent first.
func (e *Engine) ServicesForOrigin(origin string) []classifier.Record {
	return e.registry.ForOrigin(origin)
}

// Sanitize runs the PII pipeline over text for a site category.
func (e *Engine) Sanitize(text, category string) pii.Result {
	res := e.sanitizer.Sanitize(text, category)
	for typ, n := range res.Summary.Counts {
		e.telemetry.RecordPIIDetections(typ, n)
	}
	return res
}

// SanitizeValue walks a decoded JSON value and sanitizes every string.
func (e *Engine) SanitizeValue(value any, category string) (any, pii.Summary) {
	out, summary := e.sanitizer.SanitizeValue(value, category)
	for typ, n := range summary.Counts {
		e.telemetry.RecordPIIDetections(typ, n)
	}
	return out, summary
}

// ReportPII records a PII sighting for (contextID, origin) so later
// classifications in the window correlate. The hash deduplicates
// duplicate reports; raw values never enter the aggregator.
func (e *Engine) ReportPII(contextID int, origin string, kinds []string, text string) bool {
	return e.buckets.MarkPII(contextID, origin, kinds, checksum.HashKey(text))
}

// Assess scores a browsing context.
func (e *Engine) Assess(rctx risk.Context) risk.Assessment {
	return risk.Assess(rctx)
}

// ExplainRisk narrates an assessment, paraphrasing when a model is
// wired and falling back to the deterministic template.
func (e *Engine) ExplainRisk(ctx context.Context, assessment risk.Assessment, rctx risk.Context) string {
	return risk.Explain(ctx, assessment, rctx, e.para, e.cfg.Explain.ParaphraseTimeout())
}

// InferSiteCategory derives the coarse category used by risk scoring
// and context rules.
func (e *Engine) InferSiteCategory(hostname, url, title string) string {
	return risk.InferSiteCategory(hostname, url, title)
}

// RunFlusher drives the debounced bucket writer until ctx ends.
func (e *Engine) RunFlusher(ctx context.Context) {
	e.buckets.RunFlusher(ctx)
}

// Close flushes buckets, drains escalations, and releases the store.
func (e *Engine) Close(ctx context.Context) {
	e.buckets.FlushAll(ctx)
	e.notifier.Close(ctx)
	e.telemetry.Shutdown(ctx)
	if e.ownsStore {
		_ = e.store.Close()
	}
}
