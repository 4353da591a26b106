package telemetry

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Keys that may carry observed values never become metric labels.
var denyKeys = []string{
	"text",
	"value",
	"excerpt",
	"body",
	"authorization",
	"api_key",
	"token",
	"email",
	"phone",
	"ssn",
	"iban",
	"card",
	"password",
}

// SafeAttributes converts a label map to OTEL attributes, dropping
// denied keys, oversized strings, and unsupported types.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	var attrs []attribute.KeyValue
	for k, v := range values {
		lk := strings.ToLower(k)
		denied := false
		for _, bad := range denyKeys {
			if strings.Contains(lk, bad) {
				denied = true
				break
			}
		}
		if denied {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > 512 {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			if len(val) > 32 {
				val = val[:32]
			}
			attrs = append(attrs, attribute.StringSlice(k, val))
		}
	}
	return attrs
}
