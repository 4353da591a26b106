// Package logredact keeps observed values out of process logs. Every
// log line that may carry header values, URLs, or scanned text goes
// through String, which masks secret-shaped and PII-shaped substrings
// and strips URL paths down to host plus final segment.
package logredact

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	bearerRe    = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	apiKeyRe    = regexp.MustCompile(`(?i)((?:x-)?api[_-]?key(?:s)?\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	tokenishRe  = regexp.MustCompile(`(?i)(key|token|secret)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	emailRe     = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	cardRunRe   = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	ssnShapedRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	urlRe       = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String masks secret-shaped and PII-shaped substrings.
func String(s string) string {
	if s == "" {
		return s
	}
	out := s
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = tokenishRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, "[REDACTED]") {
			return m
		}
		sub := tokenishRe.FindStringSubmatch(m)
		if len(sub) < 3 {
			return m
		}
		return sub[1] + "=[REDACTED]"
	})
	out = urlRe.ReplaceAllStringFunc(out, trimURL)
	out = emailRe.ReplaceAllString(out, "[EMAIL]")
	out = cardRunRe.ReplaceAllString(out, "[NUMBER]")
	out = ssnShapedRe.ReplaceAllString(out, "[NUMBER]")
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...any) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a redacted log line.
func Logf(format string, args ...any) {
	log.Print(Sprintf(format, args...))
}

// Fatalf prints a redacted fatal log line.
func Fatalf(format string, args ...any) {
	log.Fatal(Sprintf(format, args...))
}

// trimURL keeps scheme, host, and the last path segment; query
// strings and deep paths are where observed values leak.
func trimURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[URL]"
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Scheme + "://" + u.Host + "/"
	}
	return u.Scheme + "://" + u.Host + "/" + base
}
