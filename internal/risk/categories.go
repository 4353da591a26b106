package risk

import (
	"regexp"
	"strings"
)

// Keyword rules for site category inference, checked in order; the
// first hit wins and the fallback is "general".
var categoryRules = []struct {
	category string
	re       *regexp.Regexp
}{
	{"government", regexp.MustCompile(`\.gov$|\bgov\b`)},
	{"banking", regexp.MustCompile(`bank|finance|pay|paypal|chase|boa|hsbc|citibank|stripe|square|visa|mastercard`)},
	{"healthcare", regexp.MustCompile(`clinic|health|medical|patient|pharma|hospital|hipaa`)},
	{"education", regexp.MustCompile(`\.edu$|university|college|campus|edu\b`)},
	{"developer", regexp.MustCompile(`github|gitlab|bitbucket|npm|pypi|developer|dev\b`)},
	{"ecommerce", regexp.MustCompile(`shop|cart|checkout|product|ecommerce|store\b`)},
	{"social", regexp.MustCompile(`twitter|x\.com|facebook|instagram|linkedin|tiktok|social\b`)},
	{"news", regexp.MustCompile(`news|cnn|bbc|nytimes|guardian|reuters|apnews`)},
	{"work", regexp.MustCompile(`work|intranet|jira|confluence|notion|slack|microsoft|google\s*workspace`)},
}

// InferSiteCategory derives a coarse category from the hostname, URL
// and optional page title. Purely lexical, good enough to pick base
// weights and context rules.
func InferSiteCategory(hostname, url, title string) string {
	hay := strings.ToLower(hostname) + " " + strings.ToLower(url) + " " + strings.ToLower(title)
	for _, rule := range categoryRules {
		if rule.re.MatchString(hay) {
			return rule.category
		}
	}
	return "general"
}

// regulated categories carry their own red flag.
var regulatedCategories = map[string]bool{
	"banking":    true,
	"healthcare": true,
	"government": true,
}
