package risk

// Category base weights. Rank order matters more than the exact
// values: regulated categories sit well above casual browsing.
var categoryBase = map[string]int{
	"banking":    45,
	"healthcare": 40,
	"government": 40,
	"work":       25,
	"developer":  20,
	"ecommerce":  20,
	"education":  20,
	"social":     15,
	"news":       10,
	"general":    10,
}

const defaultCategoryBase = 10

// Per-PII-type weights. A type's total contribution caps at 3x its
// weight so one repeated field cannot dominate the score.
var dataWeights = map[string]int{
	"biometric":    40,
	"ssn":          35,
	"card":         35,
	"api_key":      30,
	"password":     30,
	"iban":         25,
	"address_full": 20,
	"dob":          20,
	"phone":        15,
	"crypto_addr":  15,
	"email":        10,
	"name":         5,
}

// perTypeCap is the repeat multiplier limit per PII type.
const perTypeCap = 3

// Processing location weights; cloud is strictly the highest.
var processingWeights = map[Processing]int{
	ProcessingCloud:    25,
	ProcessingUnknown:  10,
	ProcessingOnDevice: 5,
}

const trackerWeight = 10

// redFlagWeightFloor: PII types at or above this weight get their own
// red flag when present.
const redFlagWeightFloor = 20

// Level thresholds.
const (
	highThreshold   = 65
	mediumThreshold = 35
)

func toLevel(score int) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}
