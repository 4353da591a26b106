// Package risk turns a browsing context plus a PII summary into a
// bounded numeric score, a three-level category, and human-readable
// red flags.
package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tabguard-ai/tabguard/internal/explain"
	"github.com/tabguard-ai/tabguard/internal/pii"
)

// Processing says where the observed service appears to run.
type Processing string

const (
	ProcessingCloud    Processing = "cloud"
	ProcessingOnDevice Processing = "on_device"
	ProcessingUnknown  Processing = "unknown"
)

// ParseProcessing maps free-form input to a Processing value,
// defaulting to unknown.
func ParseProcessing(s string) Processing {
	switch Processing(strings.ToLower(strings.TrimSpace(s))) {
	case ProcessingCloud:
		return ProcessingCloud
	case ProcessingOnDevice:
		return ProcessingOnDevice
	default:
		return ProcessingUnknown
	}
}

// Level is the categorical risk outcome.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Rank orders levels for threshold comparisons.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// Context is the input to an assessment.
type Context struct {
	Origin          string      `json:"origin"`
	Processing      Processing  `json:"processing"`
	TrackersPresent bool        `json:"trackers_present"`
	SiteCategory    string      `json:"site_category"`
	PIISummary      pii.Summary `json:"pii_summary"`
}

// Assessment is the derived result of one scoring pass.
type Assessment struct {
	AIDetected bool           `json:"ai_detected"`
	Level      Level          `json:"level"`
	Score      int            `json:"score"`
	RedFlags   []string       `json:"red_flags"`
	Factors    map[string]int `json:"factors"`
}

// Assess computes the score as category base + capped per-type PII
// contributions + processing weight + tracker weight, clamped to
// [0,100], then maps it onto a level and red flags.
func Assess(ctx Context) Assessment {
	factors := make(map[string]int)

	base, ok := categoryBase[ctx.SiteCategory]
	if !ok {
		base = defaultCategoryBase
	}
	factors["category"] = base
	score := base

	// Deterministic flag order: sorted type names.
	types := make([]string, 0, len(ctx.PIISummary.Counts))
	for typ := range ctx.PIISummary.Counts {
		types = append(types, typ)
	}
	sort.Strings(types)

	anyPII := false
	for _, typ := range types {
		count := ctx.PIISummary.Counts[typ]
		if count <= 0 {
			continue
		}
		anyPII = true
		w := dataWeights[typ]
		contribution := w * count
		if limit := w * perTypeCap; contribution > limit {
			contribution = limit
		}
		if contribution > 0 {
			factors["data:"+typ] = contribution
			score += contribution
		}
	}

	proc := processingWeights[ctx.Processing]
	factors["processing"] = proc
	score += proc

	track := 0
	if ctx.TrackersPresent {
		track = trackerWeight
	}
	factors["trackers"] = track
	score += track

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	var flags []string
	if ctx.Processing == ProcessingCloud {
		flags = append(flags, "Cloud processing")
	}
	if ctx.TrackersPresent {
		flags = append(flags, "Trackers detected")
	}
	for _, typ := range types {
		if ctx.PIISummary.Counts[typ] > 0 && dataWeights[typ] >= redFlagWeightFloor {
			flags = append(flags, typ+" detected")
		}
	}
	if regulatedCategories[ctx.SiteCategory] {
		flags = append(flags, ctx.SiteCategory+" site")
	}

	// Conservative AI inference from processing hints and PII signals.
	aiDetected := ctx.Processing == ProcessingCloud ||
		(ctx.Processing == ProcessingOnDevice && anyPII) ||
		ctx.TrackersPresent

	return Assessment{
		AIDetected: aiDetected,
		Level:      toLevel(score),
		Score:      score,
		RedFlags:   flags,
		Factors:    factors,
	}
}

// explainCap bounds paraphrased output length.
const explainCap = 240

// Explain restates the computed facts in at most two sentences. When
// a paraphraser is available it rewrites the fact sheet under a "no
// new facts" instruction and a hard deadline; absence, error or
// timeout all fall back to the deterministic template.
func Explain(ctx context.Context, assessment Assessment, rctx Context, p explain.Paraphraser, timeout time.Duration) string {
	fallback := fmt.Sprintf("Based on site type and detected data, risk is %s. %s",
		assessment.Level, strings.Join(assessment.RedFlags, "; "))
	fallback = strings.TrimSpace(fallback)

	if p == nil {
		return fallback
	}

	var detected []string
	for _, typ := range sortedTypes(rctx.PIISummary.Counts) {
		if n := rctx.PIISummary.Counts[typ]; n > 0 {
			detected = append(detected, fmt.Sprintf("%s(%d)", typ, n))
		}
	}
	dataLine := "none"
	if len(detected) > 0 {
		dataLine = strings.Join(detected, ", ")
	}
	trackersLine := "no"
	if rctx.TrackersPresent {
		trackersLine = "yes"
	}
	prompt := strings.Join([]string{
		"You rephrase risk summaries. Do not infer new facts.",
		"Facts:",
		"- Site category: " + rctx.SiteCategory,
		"- Processing: " + string(rctx.Processing),
		"- Trackers present: " + trackersLine,
		"- Data detected: " + dataLine,
		fmt.Sprintf("- Risk score: %d (%s)", assessment.Score, assessment.Level),
		"Rules: rephrase clearly in <= 2 sentences, no advice beyond these facts, no guessing.",
	}, "\n")

	if text, ok := explain.TryParaphrase(ctx, p, prompt, timeout); ok {
		return explain.ClampRunes(text, explainCap)
	}
	return fallback
}

func sortedTypes(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for typ := range counts {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
