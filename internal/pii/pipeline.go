package pii

import (
	"regexp"
	"strings"
)

// ScanByteLimit is the cap above which an input is chunked before
// scanning rather than processed in one pass.
const ScanByteLimit = 512 * 1024

// chunkSize is the per-chunk cap when splitting a large input on
// paragraph boundaries.
const chunkSize = 4000

// Result is one pass of the sanitizer over a text blob.
type Result struct {
	Original   string      `json:"-"`
	Sanitized  string      `json:"sanitized"`
	Redactions []Redaction `json:"redactions"`
	Summary    Summary     `json:"pii_summary"`
}

// Sanitizer composes detection, masking, granularity and context
// rules. A zero-value Sanitizer is not usable; construct with New.
type Sanitizer struct {
	granularity GranularitySettings
}

// New returns a Sanitizer applying the given disclosure policy.
func New(granularity GranularitySettings) *Sanitizer {
	return &Sanitizer{granularity: granularity}
}

// Sanitize runs detect → mask → granularity → context rules over one
// text blob. Inputs over ScanByteLimit are split on paragraph
// boundaries, processed per chunk, and re-joined; counts merge across
// chunks. It never fails: the worst case is returning the input
// unchanged with an empty redaction list.
func (s *Sanitizer) Sanitize(text, category string) Result {
	if len(text) <= ScanByteLimit {
		return s.sanitizeChunk(text, category)
	}

	var (
		parts      []string
		redactions []Redaction
		summary    = Summary{Counts: make(map[string]int)}
	)
	for _, chunk := range chunkByParagraph(text, chunkSize) {
		res := s.sanitizeChunk(chunk, category)
		parts = append(parts, res.Sanitized)
		redactions = append(redactions, res.Redactions...)
		summary.Merge(res.Summary)
	}
	return Result{
		Original:   text,
		Sanitized:  strings.Join(parts, "\n\n"),
		Redactions: redactions,
		Summary:    summary,
	}
}

func (s *Sanitizer) sanitizeChunk(text, category string) Result {
	redactions, summary := Detect(text)
	out := Mask(text, redactions)
	out = ApplyGranularity(out, s.granularity)
	out = ApplyContextRules(out, category)
	return Result{
		Original:   text,
		Sanitized:  out,
		Redactions: redactions,
		Summary:    summary,
	}
}

// SanitizeValue deep-walks a JSON-shaped value (maps, slices, string
// leaves) and sanitizes every string it finds. Non-string scalars pass
// through untouched. The merged summary covers all visited strings.
func (s *Sanitizer) SanitizeValue(value any, category string) (any, Summary) {
	summary := Summary{Counts: make(map[string]int)}
	out := s.walkValue(value, category, &summary)
	return out, summary
}

func (s *Sanitizer) walkValue(value any, category string, summary *Summary) any {
	switch v := value.(type) {
	case string:
		res := s.sanitizeChunk(v, category)
		summary.Merge(res.Summary)
		return res.Sanitized
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.walkValue(item, category, summary)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.walkValue(item, category, summary)
		}
		return out
	default:
		return value
	}
}

// chunkByParagraph splits on blank lines, then hard-splits any
// paragraph still longer than max.
func chunkByParagraph(input string, max int) []string {
	var out []string
	for _, p := range splitParagraphs(input) {
		if len(p) <= max {
			out = append(out, p)
			continue
		}
		for i := 0; i < len(p); i += max {
			end := i + max
			if end > len(p) {
				end = len(p)
			}
			out = append(out, p[i:end])
		}
	}
	return out
}

var paragraphBreakRe = regexp.MustCompile(`\n{2,}`)

func splitParagraphs(input string) []string {
	return paragraphBreakRe.Split(input, -1)
}
