// Package voice maps character attributes to synthesis voices.
//
// Selection resolves in three stages: an exact scenario-role match wins,
// otherwise the (gender, style) pair picks from a small table, otherwise the
// gender default applies. The voice IDs are the OpenAI speech catalogue.
package voice

import "strings"

// Defaults per gender, used when no more specific rule matches.
const (
	defaultFemale  = "nova"
	defaultMale    = "echo"
	defaultNeutral = "alloy"
)

// roleVoices binds well-known scenario roles to a fixed voice so that the
// same role sounds identical across sessions.
var roleVoices = map[string]string{
	"barista":     "shimmer",
	"waiter":      "echo",
	"waitress":    "shimmer",
	"interviewer": "onyx",
	"clerk":       "alloy",
	"shopkeeper":  "fable",
	"teacher":     "nova",
	"officer":     "onyx",
}

// styleVoices picks a voice for a (gender, style) pair. Styles follow the
// character model: cheerful, calm, strict.
var styleVoices = map[[2]string]string{
	{"female", "cheerful"}: "nova",
	{"female", "calm"}:     "shimmer",
	{"female", "strict"}:   "shimmer",
	{"male", "cheerful"}:   "echo",
	{"male", "calm"}:       "fable",
	{"male", "strict"}:     "onyx",
	{"neutral", "cheerful"}: "alloy",
	{"neutral", "calm"}:     "fable",
}

// Select returns the voice ID for a character. role is the character's
// scenario role (e.g. "barista"), gender is "male", "female", or anything
// else for neutral, style is a free-form tone hint (e.g. "warm"). All
// arguments are matched case-insensitively; empty values simply skip their
// stage.
func Select(role, gender, style string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	gender = strings.ToLower(strings.TrimSpace(gender))
	style = strings.ToLower(strings.TrimSpace(style))

	if v, ok := roleVoices[role]; ok {
		return v
	}

	g := normalizeGender(gender)
	if v, ok := styleVoices[[2]string{g, style}]; ok {
		return v
	}

	switch g {
	case "female":
		return defaultFemale
	case "male":
		return defaultMale
	default:
		return defaultNeutral
	}
}

func normalizeGender(g string) string {
	switch g {
	case "female", "f", "woman":
		return "female"
	case "male", "m", "man":
		return "male"
	default:
		return "neutral"
	}
}
