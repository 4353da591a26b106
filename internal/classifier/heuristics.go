package classifier

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// pathHeuristics matches the broad AI-terminology vocabulary seen in
// inference endpoint paths.
var pathHeuristics = regexp.MustCompile(`(?i)(generate|chat|prompt|predict|infer|inference|complet(ion|e)|embedd(ing|ings)|vision|speech|tts|stt|asr|ocr|translate|moderation|rerank|reason|think|model|models|v1|v2|stream|sse|ws|vertex|gemini|ai|ml|l(la)?m)`)

// userContentBodyFloor is the request body size above which a
// mutating request is treated as carrying user content.
const userContentBodyFloor = 4000

// Unknown-host heuristic tuning.
const (
	trivialBodyCeiling = 2000
	largeJSONBodyFloor = 50_000
)

// ignoredResourcePatterns lists analytics, tag-manager, pixel and CDN
// endpoints whose traffic is never AI usage, whatever its shape.
var ignoredResourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)google-analytics\.com`),
	regexp.MustCompile(`(?i)googletagmanager\.com`),
	regexp.MustCompile(`(?i)doubleclick\.net`),
	regexp.MustCompile(`(?i)facebook\.com/(tr|plugins)`),
	regexp.MustCompile(`(?i)connect\.facebook\.net`),
	regexp.MustCompile(`(?i)linkedin\.com/(analytics|li|px)`),
	regexp.MustCompile(`(?i)twitter\.com/i/pixel`),
	regexp.MustCompile(`(?i)cdnjs\.cloudflare\.com`),
	regexp.MustCompile(`(?i)unpkg\.com`),
	regexp.MustCompile(`(?i)jsdelivr\.net`),
	regexp.MustCompile(`(?i)static\.hotjar\.com`),
	regexp.MustCompile(`(?i)cdn\.segment\.com`),
	regexp.MustCompile(`(?i)cdn\.amplitude\.com`),
	regexp.MustCompile(`(?i)cdn\.mixpanel\.com`),
}

func ignoredResourceURL(rawURL string) bool {
	for _, re := range ignoredResourcePatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func suspiciousPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return pathHeuristics.MatchString(u.Path)
}

// guessDataTypes derives coarse data-type tags from Content-Type and
// Accept headers.
func guessDataTypes(headers []Header) []string {
	out := make(map[string]bool)
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		value := strings.ToLower(h.Value)
		switch name {
		case "content-type":
			if strings.Contains(value, "json") {
				out["json"] = true
			}
			if strings.Contains(value, "text") {
				out["text"] = true
			}
			if strings.Contains(value, "multipart/form-data") || strings.Contains(value, "image/") {
				out["image"] = true
			}
			if strings.Contains(value, "audio/") {
				out["audio"] = true
			}
			if strings.Contains(value, "video/") {
				out["video"] = true
			}
			if strings.Contains(value, "octet-stream") {
				out["binary"] = true
			}
		case "accept":
			if strings.Contains(value, "application/json") {
				out["json"] = true
			}
			if strings.Contains(value, "image/") {
				out["image"] = true
			}
			if strings.Contains(value, "audio/") {
				out["audio"] = true
			}
			if strings.Contains(value, "video/") {
				out["video"] = true
			}
		}
	}
	types := make([]string, 0, len(out))
	for t := range out {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func hasAny(types []string, wanted ...string) bool {
	for _, t := range types {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

// payloadLooksLikeUserContent reports whether the request plausibly
// carries user-authored or media content.
func payloadLooksLikeUserContent(ev Event) bool {
	if !ev.mutating() {
		return false
	}
	if n := ev.bodyBytes(); n > userContentBodyFloor {
		return true
	}
	return hasAny(guessDataTypes(ev.RequestHeaders), "image", "audio", "video", "binary")
}

// responseLooksStructured reports whether the response content-type
// implies machine-consumable output.
func responseLooksStructured(ev Event) bool {
	return hasAny(guessDataTypes(ev.ResponseHeaders), "json", "image", "audio", "video", "binary")
}

// authShapedHeader reports an Authorization or API-key style request
// header.
func authShapedHeader(ev Event) bool {
	for _, h := range ev.RequestHeaders {
		switch strings.ToLower(h.Name) {
		case "authorization", "x-api-key", "api-key", "x-goog-api-key", "anthropic-api-key":
			return true
		}
	}
	return false
}

// streamingTransfer reports a websocket or server-sent-events shaped
// exchange.
func streamingTransfer(ev Event) bool {
	if v, ok := ev.header(ev.ResponseHeaders, "content-type"); ok &&
		strings.Contains(strings.ToLower(v), "text/event-stream") {
		return true
	}
	if v, ok := ev.header(ev.RequestHeaders, "upgrade"); ok &&
		strings.Contains(strings.ToLower(v), "websocket") {
		return true
	}
	lower := strings.ToLower(ev.URL)
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

// quietResourceType lists resource types the unknown-host heuristic
// never flags.
func quietResourceType(resourceType string) bool {
	switch strings.ToLower(resourceType) {
	case "image", "media", "font", "stylesheet":
		return true
	}
	return false
}

func jsonShapedBody(ev Event) bool {
	v, ok := ev.header(ev.RequestHeaders, "content-type")
	if !ok {
		return false
	}
	lower := strings.ToLower(v)
	return strings.Contains(lower, "json") || strings.Contains(lower, "ndjson")
}

// riskFor derives the record risk. Media payloads dominate; anything
// else AI-flagged sits at medium.
func riskFor(dataTypes []string, isAI bool) string {
	if !isAI {
		return RiskLow
	}
	if hasAny(dataTypes, "image", "audio", "video") {
		return RiskHigh
	}
	return RiskMedium
}
