package pii

import (
	"sort"
	"strings"

	"github.com/tabguard-ai/tabguard/internal/checksum"
)

// Mask replaces the detected spans with typed redaction tokens.
//
// Idempotent: text that already contains the token prefix is returned
// unchanged, so reprocessing masked output is a no-op. Spans are
// applied back to front to keep earlier offsets valid.
func Mask(text string, redactions []Redaction) string {
	if text == "" || strings.Contains(text, TokenPrefix) {
		return text
	}
	sorted := make([]Redaction, len(redactions))
	copy(sorted, redactions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := text
	for _, r := range sorted {
		if r.Start < 0 || r.End > len(out) || r.Start >= r.End {
			continue
		}
		out = out[:r.Start] + TokenPrefix + tokenLabel(r) + TokenSuffix + out[r.End:]
	}
	return out
}

// tokenLabel builds the TYPE:payload part of a redaction token. The
// payload keeps only what the disclosure rules allow: email domain,
// last 4 card/phone digits, a short hash for API keys.
func tokenLabel(r Redaction) string {
	switch r.Type {
	case TypeEmail:
		if _, domain, ok := strings.Cut(r.Value, "@"); ok {
			return "EMAIL:" + strings.ToLower(domain)
		}
		return "EMAIL"
	case TypeCard:
		return "CARD:**** **** **** " + lastDigits(r.Value, 4)
	case TypePhone:
		return "PHONE:" + lastDigits(r.Value, 4)
	case TypeAPIKey:
		// Hash label only. Not reversible and not a security control.
		return "APIKEY:" + checksum.ShortHash(r.Value)
	default:
		return strings.ToUpper(r.Type)
	}
}

func lastDigits(s string, n int) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) <= n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}
