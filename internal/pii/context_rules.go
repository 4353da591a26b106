package pii

import "regexp"

// Categories that get the extra masking pass. Matches the sensitive
// set used by the risk engine's red flags, plus work.
var sensitiveCategories = map[string]bool{
	"banking":    true,
	"healthcare": true,
	"government": true,
	"work":       true,
}

var (
	// "John Doe (ID: 12345)", "Jane Roe MRN# 998" and friends.
	nameIDPairRe = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b\s*\(?(ID|MRN|Invoice)[:#]\s*\w+\)?`)
	// Document identifiers like INV-2024-1234.
	docIDRe = regexp.MustCompile(`\b(?:INV|CLAIM|TKT)-\d{4}-\d{3,5}\b`)
	// Obvious street addresses, same shape the detector uses.
	streetRe = regexp.MustCompile(`(?i)\b\d+\s+(?:[A-Za-z0-9._'-]+\s){1,5}(?:Street|St\.|Road|Rd\.|Ave\.|Avenue|Blvd\.|Lane|Ln\.)`)
)

// ApplyContextRules adds category-specific masking on sensitive sites:
// name+ID pairs, document identifiers, and street addresses that the
// generic pass may have left readable. Other categories pass through.
func ApplyContextRules(text, category string) string {
	if !sensitiveCategories[category] {
		return text
	}
	out := nameIDPairRe.ReplaceAllString(text,
		TokenPrefix+"NAME"+TokenSuffix+" ($1: "+TokenPrefix+"ID"+TokenSuffix+")")
	out = docIDRe.ReplaceAllString(out, TokenPrefix+"DOC_ID"+TokenSuffix)
	out = streetRe.ReplaceAllString(out, TokenPrefix+"ADDRESS"+TokenSuffix)
	return out
}
