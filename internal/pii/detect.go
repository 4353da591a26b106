package pii

import (
	"regexp"
	"sort"

	"github.com/tabguard-ai/tabguard/internal/checksum"
)

// matcher pairs a compiled pattern with its type. Card and IBAN get
// their own validated passes and are not in this table.
type matcher struct {
	typ string
	re  *regexp.Regexp
}

var plainMatchers = []matcher{
	{TypeEmail, regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)},
	{TypePhone, regexp.MustCompile(`\b(?:\+?\d{1,3}[\s-]?)?(?:\(?\d{3}\)?[\s-]?)?\d{3}[\s-]?\d{4}\b`)},
	{TypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{TypeJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)},
	{TypeAPIKey, regexp.MustCompile(`(AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z_-]{35}|sk-[A-Za-z0-9]{20,})`)},
	{TypePassword, regexp.MustCompile(`(?i)\b(pass(word)?|pwd|secret|token)\s*[:=]\s*[^\s,;]{6,}`)},
	{TypeCrypto, regexp.MustCompile(`\b(0x[a-fA-F0-9]{40}|bc1[ac-hj-np-z02-9]{11,71})\b`)},
	{TypeDOB, regexp.MustCompile(`\b(?:\d{1,2}[/.-]){2}\d{2,4}\b`)},
	{TypeAddress, regexp.MustCompile(`(?i)\b\d+\s+(?:[A-Za-z0-9._'-]+\s){1,5}(?:Street|St\.|Road|Rd\.|Ave\.|Avenue|Blvd\.|Lane|Ln\.)`)},
}

var (
	cardRe = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ibanRe = regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)
)

// Detect scans text and returns the accepted spans plus per-type
// counts. Spans come back sorted by start offset with overlaps merged
// into the larger span. Empty input yields an empty result, never nil
// maps.
func Detect(text string) ([]Redaction, Summary) {
	summary := Summary{Counts: make(map[string]int)}
	if text == "" {
		return nil, summary
	}

	var spans []Redaction
	add := func(typ string, loc []int) {
		summary.Counts[typ]++
		spans = append(spans, Redaction{
			Type:       typ,
			Value:      text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: 0.9,
		})
	}

	for _, m := range plainMatchers {
		for _, loc := range m.re.FindAllStringIndex(text, -1) {
			add(m.typ, loc)
		}
	}
	// Card candidates must pass Luhn, IBAN candidates mod-97.
	for _, loc := range cardRe.FindAllStringIndex(text, -1) {
		if checksum.LuhnValid(text[loc[0]:loc[1]]) {
			add(TypeCard, loc)
		}
	}
	for _, loc := range ibanRe.FindAllStringIndex(text, -1) {
		if checksum.IBANValid(text[loc[0]:loc[1]]) {
			add(TypeIBAN, loc)
		}
	}

	return mergeOverlaps(spans), summary
}

// mergeOverlaps sorts by start (longer span first on ties) and folds
// overlapping spans together, extending the kept span when the next
// one reaches further.
func mergeOverlaps(spans []Redaction) []Redaction {
	if len(spans) == 0 {
		return nil
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End-spans[i].Start > spans[j].End-spans[j].Start
	})
	merged := spans[:1:1]
	for _, r := range spans[1:] {
		last := &merged[len(merged)-1]
		if r.Start >= last.End {
			merged = append(merged, r)
			continue
		}
		if r.End > last.End {
			// Keep the first span's type and value, just widen it.
			last.End = r.End
		}
	}
	return merged
}
