// Package pii scans free text for personal data and rewrites it into
// typed redaction tokens before the text leaves the device.
//
// Detection is regex-first with checksum validation for card numbers
// (Luhn) and IBANs (mod-97). Masking is idempotent: already-masked
// text passes through untouched. The pipeline composes detection,
// masking, granularity policies and category-specific context rules
// for one text blob, a chunked large input, or a JSON-shaped payload.
package pii

// Redaction token delimiters. Consumers parse tokens by these glyphs,
// so they are part of the wire format and must not change.
const (
	TokenPrefix = "⟦" // ⟦
	TokenSuffix = "⟧" // ⟧
)

// Known detection types. Values double as summary keys and as risk
// weight keys, so they stay lowercase snake_case.
const (
	TypeEmail    = "email"
	TypePhone    = "phone"
	TypeSSN      = "ssn"
	TypeIBAN     = "iban"
	TypeCard     = "card"
	TypeJWT      = "jwt"
	TypeAPIKey   = "api_key"
	TypePassword = "password"
	TypeCrypto   = "crypto_addr"
	TypeDOB      = "dob"
	TypeAddress  = "address_full"
)

// Redaction is one detected span. Offsets are byte offsets into the
// scanned text; after a detection pass spans are sorted by Start and
// non-overlapping.
type Redaction struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Summary counts accepted matches per type. Counts are accumulated
// before overlap merging, so a span swallowed by a larger one still
// counted toward its own type.
type Summary struct {
	Counts map[string]int `json:"counts"`
}

// Merge folds other's counts into s.
func (s *Summary) Merge(other Summary) {
	if s.Counts == nil {
		s.Counts = make(map[string]int, len(other.Counts))
	}
	for k, v := range other.Counts {
		s.Counts[k] += v
	}
}

// Any reports whether any type has a positive count.
func (s Summary) Any() bool {
	for _, v := range s.Counts {
		if v > 0 {
			return true
		}
	}
	return false
}
