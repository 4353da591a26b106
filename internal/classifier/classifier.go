// Package classifier decides, per observed network request, whether
// the traffic looks like an AI service exchange, how risky it is, and
// why. Decisions come from the provider directory first, then layered
// heuristics, then correlation with recent PII sightings. The
// classifier never fails: undecidable input produces an unknown,
// low-risk record or no record at all.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tabguard-ai/tabguard/internal/buckets"
	"github.com/tabguard-ai/tabguard/internal/explain"
	"github.com/tabguard-ai/tabguard/internal/provider"
	"github.com/tabguard-ai/tabguard/internal/risk"
)

// Escalator receives one-way escalation suggestions for AI-flagged
// origins. Implementations manage their own thresholds and cooldowns.
type Escalator interface {
	Escalate(ctx context.Context, origin string, level risk.Level)
}

// explanationCap bounds classifier explanations after paraphrasing.
const explanationCap = 160

// Options wires a Classifier. Directory and Registry are required;
// the rest are optional collaborators.
type Options struct {
	Directory        *provider.Directory
	Registry         *Registry
	Aggregator       *buckets.Aggregator
	Cache            *explain.Cache
	Paraphraser      explain.Paraphraser
	ParaphraseWindow time.Duration
	Escalator        Escalator
	Now              func() time.Time
}

// Classifier runs the layered classification pipeline.
type Classifier struct {
	dir   *provider.Directory
	reg   *Registry
	agg   *buckets.Aggregator
	cache *explain.Cache
	para  explain.Paraphraser
	pwin  time.Duration
	esc   Escalator
	now   func() time.Time
}

// New builds a Classifier from Options.
func New(opt Options) *Classifier {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.ParaphraseWindow <= 0 {
		opt.ParaphraseWindow = explain.DefaultParaphraseTimeout
	}
	return &Classifier{
		dir:   opt.Directory,
		reg:   opt.Registry,
		agg:   opt.Aggregator,
		cache: opt.Cache,
		para:  opt.Paraphraser,
		pwin:  opt.ParaphraseWindow,
		esc:   opt.Escalator,
		now:   opt.Now,
	}
}

// Classify runs the full pipeline for one event. The second return is
// false when the event was discarded (non-HTTP target or negative
// context id); otherwise the stored record is returned.
func (c *Classifier) Classify(ctx context.Context, ev Event) (Record, bool) {
	if ev.ContextID < 0 {
		return Record{}, false
	}
	reqOrigin := parseOrigin(ev.URL)
	if reqOrigin == "" || !isHTTPOrigin(reqOrigin) {
		return Record{}, false
	}
	pageOrigin := parseOrigin(ev.Initiator)
	if pageOrigin == "" {
		pageOrigin = reqOrigin
	}
	host := parseHost(ev.URL)

	knownName := ""
	if c.dir != nil {
		if info, ok := c.dir.Lookup(host); ok {
			knownName = info.Name
		}
	}

	userContent := payloadLooksLikeUserContent(ev)
	structured := responseLooksStructured(ev)
	ignored := ignoredResourceURL(ev.URL)

	isAI := false
	classification := ClassUnknown
	reason := ""

	switch {
	case knownName != "":
		isAI = true
		classification = ClassKnown
		reason = "Known AI provider: " + knownName
	case ignored:
		// Analytics, pixel and CDN traffic stays unflagged.
	case suspiciousPath(ev.URL) && (userContent || structured):
		isAI = true
		classification = ClassHeuristic
		reason = "Heuristics: path + payload/response"
	case userContent && structured:
		isAI = true
		classification = ClassHeuristic
		reason = "Heuristics: user-like input and structured output"
	case c.unknownAILike(ev, host):
		isAI = true
		classification = ClassHeuristic
		reason = "Unknown AI-like traffic"
	}

	if !ignored && c.agg != nil && c.agg.PIIRecent(ev.ContextID, pageOrigin) {
		isAI = true
		if classification == ClassUnknown {
			classification = ClassHeuristic
		}
		corr := "correlated with recent sensitive-data activity"
		if reason == "" {
			reason = "Heuristics: " + corr
		} else {
			reason += "; " + corr
		}
	}

	dataTypes := mergeTypes(guessDataTypes(ev.RequestHeaders), guessDataTypes(ev.ResponseHeaders))
	riskLabel := riskFor(dataTypes, isAI)

	rec := Record{
		Origin:         pageOrigin,
		URL:            ev.URL,
		KnownProvider:  knownName,
		IsAI:           isAI,
		Reason:         reason,
		Classification: classification,
		Risk:           riskLabel,
		DataTypes:      dataTypes,
		Explanation:    c.explanation(ctx, riskLabel, knownName, dataTypes),
		LastSeen:       c.now(),
	}

	if c.reg != nil {
		c.reg.Save(ctx, rec)
		c.reg.MarkSeen(ctx, host)
	}
	c.recordSignals(ev, pageOrigin, isAI)

	if isAI && c.esc != nil {
		c.esc.Escalate(ctx, pageOrigin, risk.Level(strings.ToLower(riskLabel)))
	}
	return rec, true
}

// unknownAILike is the conjunctive heuristic for hosts the directory
// and payload rules said nothing about.
func (c *Classifier) unknownAILike(ev Event, host string) bool {
	if quietResourceType(ev.ResourceType) {
		return false
	}
	// An absent Content-Length on a non-mutating request means no
	// payload worth flagging; mutating requests may legitimately
	// stream without declaring a length.
	body := ev.bodyBytes()
	if body < 0 && !ev.mutating() {
		return false
	}
	if body >= 0 && body <= trivialBodyCeiling {
		return false
	}
	if c.reg == nil || c.reg.SeenRecently(host) {
		return false
	}
	if authShapedHeader(ev) {
		return true
	}
	if jsonShapedBody(ev) && body >= largeJSONBodyFloor && ev.mutating() {
		return true
	}
	return streamingTransfer(ev)
}

// explanation returns the cached text for this outcome signature, or
// builds the templated sentence, optionally paraphrased, and caches
// it.
func (c *Classifier) explanation(ctx context.Context, riskLabel, providerName string, dataTypes []string) string {
	sig := ""
	if c.cache != nil {
		sig = explain.Signature(riskLabel, providerName, dataTypes)
		if text, ok := c.cache.Get(sig); ok {
			return text
		}
	}
	text := explanationFromRules(riskLabel, providerName, dataTypes)
	prompt := "Rephrase this risk explanation in clear, simple English under 24 words: " + text
	if rephrased, ok := explain.TryParaphrase(ctx, c.para, prompt, c.pwin); ok {
		text = explain.ClampRunes(rephrased, explanationCap)
	}
	if c.cache != nil {
		c.cache.Put(ctx, sig, text)
	}
	return text
}

func explanationFromRules(riskLabel, providerName string, dataTypes []string) string {
	base := "Limited data may be used with AI on-device or minimally."
	switch riskLabel {
	case RiskHigh:
		base = "This site may be sending sensitive data to an AI service."
	case RiskMedium:
		base = "This site may be sending your data to an AI service."
	}
	if providerName != "" {
		base += " Service: " + providerName + "."
	}
	if len(dataTypes) > 0 {
		base += fmt.Sprintf(" Data types: %s.", strings.Join(dataTypes, ", "))
	}
	return base
}

// recordSignals feeds the signal aggregator from this event.
func (c *Classifier) recordSignals(ev Event, origin string, isAI bool) {
	if c.agg == nil {
		return
	}
	c.agg.WithBucket(ev.ContextID, origin, func(b *buckets.SignalBucket) {
		switch {
		case streamingTransfer(ev):
			b.Counts.SSE++
		case isAI && ev.mutating():
			b.Counts.AIPost++
		case !ev.mutating() && hasAny(guessDataTypes(ev.ResponseHeaders), "binary"):
			b.Counts.ModelDownload++
		default:
			b.Counts.Passive++
		}
	})
}

func mergeTypes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
