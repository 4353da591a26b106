package pii

import "regexp"

// GranularitySettings maps a PII type to its disclosure level. Known
// levels per type:
//
//	email:   domain_only | first_letter | full_mask
//	phone:   last_4 | area_code | full_mask
//	address: city_only | state_only | country_only | full_mask
//	dob:     year_only | age_range | full_mask
//	card:    last_4 | bin_only | full_mask
//
// Unrecognized values leave tokens unchanged.
type GranularitySettings struct {
	Email   string `yaml:"email" json:"email"`
	Phone   string `yaml:"phone" json:"phone"`
	Address string `yaml:"address" json:"address"`
	DOB     string `yaml:"dob" json:"dob"`
	Card    string `yaml:"card" json:"card"`
}

// DefaultGranularity is the out-of-the-box disclosure policy.
func DefaultGranularity() GranularitySettings {
	return GranularitySettings{
		Email:   "domain_only",
		Phone:   "last_4",
		Address: "city_only",
		DOB:     "age_range",
		Card:    "last_4",
	}
}

var (
	emailTokenRe   = regexp.MustCompile(TokenPrefix + `EMAIL:[^` + TokenSuffix + `]+` + TokenSuffix)
	phoneTokenRe   = regexp.MustCompile(TokenPrefix + `PHONE:[^` + TokenSuffix + `]+` + TokenSuffix)
	phonePayloadRe = regexp.MustCompile(TokenPrefix + `PHONE:(\d{2,})` + TokenSuffix)
	cardTokenRe    = regexp.MustCompile(TokenPrefix + `CARD:[^` + TokenSuffix + `]+` + TokenSuffix)
	cardPayloadRe  = regexp.MustCompile(TokenPrefix + `CARD:([^` + TokenSuffix + `]+)` + TokenSuffix)
	dobTokenRe     = regexp.MustCompile(TokenPrefix + `DOB:[^` + TokenSuffix + `]*` + TokenSuffix)
	dobDateRe      = regexp.MustCompile(`\b(19|20)\d{2}[/.-]\d{1,2}[/.-]\d{1,2}\b`)
	addressTokenRe = regexp.MustCompile(TokenPrefix + `ADDRESS\b[^` + TokenSuffix + `]*` + TokenSuffix)
)

// ApplyGranularity collapses already-masked tokens to the configured
// disclosure level. It only rewrites token payloads; raw text outside
// tokens is untouched (except DOB age_range, which also catches
// date-shaped years the detector left in place).
func ApplyGranularity(text string, settings GranularitySettings) string {
	out := text

	switch settings.Email {
	case "domain_only":
		// Tokens already carry only the domain; keep them as-is.
	case "full_mask":
		out = emailTokenRe.ReplaceAllString(out, TokenPrefix+"EMAIL"+TokenSuffix)
	}

	switch settings.Phone {
	case "last_4":
		out = phonePayloadRe.ReplaceAllStringFunc(out, func(m string) string {
			sub := phonePayloadRe.FindStringSubmatch(m)
			return TokenPrefix + "PHONE:" + lastDigits(sub[1], 4) + TokenSuffix
		})
	case "full_mask":
		out = phoneTokenRe.ReplaceAllString(out, TokenPrefix+"PHONE"+TokenSuffix)
	}

	switch settings.Card {
	case "last_4":
		out = cardPayloadRe.ReplaceAllStringFunc(out, func(m string) string {
			sub := cardPayloadRe.FindStringSubmatch(m)
			payload := sub[1]
			if len(payload) > 4 {
				payload = payload[len(payload)-4:]
			}
			return TokenPrefix + "CARD:" + payload + TokenSuffix
		})
	case "full_mask":
		out = cardTokenRe.ReplaceAllString(out, TokenPrefix+"CARD"+TokenSuffix)
	}

	switch settings.DOB {
	case "age_range":
		out = dobDateRe.ReplaceAllString(out, TokenPrefix+"DOB:AGE_RANGE"+TokenSuffix)
	case "full_mask":
		out = dobTokenRe.ReplaceAllString(out, TokenPrefix+"DOB"+TokenSuffix)
	}

	if settings.Address == "full_mask" {
		out = addressTokenRe.ReplaceAllString(out, TokenPrefix+"ADDRESS"+TokenSuffix)
	}

	return out
}
