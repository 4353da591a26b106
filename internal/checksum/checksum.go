// Package checksum holds the pure validation helpers used by PII
// detection: Luhn for card numbers, mod-97 for IBANs, and a short
// non-cryptographic hash used for token labels and dedupe keys.
package checksum

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LuhnValid reports whether the digits in s form a Luhn-valid number.
// Non-digit characters are stripped first. Runs shorter than 12 digits
// are rejected outright.
func LuhnValid(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i]-'0')
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i])
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// IBANValid reports whether s passes the IBAN mod-97 checksum.
// Spaces are stripped and letters upper-cased before validation.
func IBANValid(s string) bool {
	clean := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if !ibanShape(clean) {
		return false
	}
	// Move the country code and check digits to the end, then expand
	// letters to two-digit numbers (A=10 .. Z=35).
	rearranged := clean[4:] + clean[:4]
	var converted strings.Builder
	converted.Grow(len(rearranged) * 2)
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		if c >= 'A' && c <= 'Z' {
			converted.WriteString(fmt.Sprintf("%d", c-'A'+10))
		} else {
			converted.WriteByte(c)
		}
	}
	// Piecewise mod so the number never exceeds int64.
	num := converted.String()
	rem := 0
	for i := 0; i < len(num); i += 7 {
		end := i + 7
		if end > len(num) {
			end = len(num)
		}
		part := fmt.Sprintf("%d%s", rem, num[i:end])
		var v int64
		if _, err := fmt.Sscanf(part, "%d", &v); err != nil {
			return false
		}
		rem = int(v % 97)
	}
	return rem == 1
}

// ibanShape checks the CCnn + 10..30 alphanumeric layout.
func ibanShape(s string) bool {
	if len(s) < 14 || len(s) > 34 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	for i := 2; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	for i := 4; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// ShortHash returns the first 8 hex characters of a fast
// non-cryptographic hash of s. It is a label, not a security control:
// used for API-key redaction tokens and duplicate-event suppression.
func ShortHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))[:8]
}

// HashKey returns the full 16-hex-char hash of s, for cache keys where
// collisions are more costly than in display labels.
func HashKey(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
