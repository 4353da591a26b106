package telemetry

import (
	"context"
	"testing"
)

func TestSafeAttributesFiltersObservedValues(t *testing.T) {
	kvs := map[string]any{
		"text":         "drop: scanned input",
		"excerpt":      "drop",
		"api_key":      "sk-123",
		"token":        "abc",
		"email_domain": "drop",
		"card_last4":   "drop",
		"origin":       "https://example.com",
		"outcome":      "known",
		"long_string":  string(make([]byte, 600)),
		"count":        int(3),
		"flagged":      true,
	}

	attrs := SafeAttributes(kvs)
	kept := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		kept[string(a.Key)] = true
	}
	for _, bad := range []string{"text", "excerpt", "api_key", "token", "email_domain", "card_last4", "long_string"} {
		if kept[bad] {
			t.Fatalf("unsafe attribute %s kept", bad)
		}
	}
	for _, good := range []string{"origin", "outcome", "count", "flagged"} {
		if !kept[good] {
			t.Fatalf("safe attribute %s dropped", good)
		}
	}
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("disabled config produced enabled provider")
	}

	// All record paths must be safe on the noop provider.
	p.RecordClassification("known", "Medium", map[string]any{"origin": "https://a.example"})
	p.RecordPIIDetections("email", 2)
	p.RecordBucketFlush(1)
	p.RecordCacheLookup(true)
	p.RecordCacheLookup(false)
	p.RecordEscalation("high")
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordClassification("known", "Low", nil)
	nilProvider.Shutdown(context.Background())
}
