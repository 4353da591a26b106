package classifier

import (
	"net/url"
	"strconv"
	"strings"
)

// Header is one request or response header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Event describes one observed network request. It carries only
// metadata; bodies never enter the classifier.
type Event struct {
	Method          string   `json:"method"`
	URL             string   `json:"url"`
	ContextID       int      `json:"context_id"`
	Initiator       string   `json:"initiator"`
	ResourceType    string   `json:"resource_type"`
	RequestHeaders  []Header `json:"request_headers"`
	ResponseHeaders []Header `json:"response_headers"`
}

func (e Event) header(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// bodyBytes reads the declared request body size from Content-Length.
// Absent or unparsable lengths report -1.
func (e Event) bodyBytes() int64 {
	v, ok := e.header(e.RequestHeaders, "content-length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func (e Event) mutating() bool {
	switch strings.ToUpper(e.Method) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// parseOrigin extracts scheme://host[:port] or "" when unparsable.
func parseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func parseHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func isHTTPOrigin(origin string) bool {
	lower := strings.ToLower(origin)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
