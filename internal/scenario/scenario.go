// Package scenario resolves a user's scenario selection into a structured
// descriptor the dialogue engine can work with.
//
// A selection is either a preset key from the built-in catalogue or free
// text. Resolution is total: unusable input yields the generic fallback
// descriptor, never an error.
package scenario

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Descriptor is a fully resolved practice scenario. Immutable once resolved
// for a session.
type Descriptor struct {
	// Key is the catalogue key the descriptor came from. Empty for
	// free-text and fallback descriptors.
	Key string `json:"key,omitempty"`

	// Situation describes the setting in one sentence.
	Situation string `json:"situation"`

	// UserRole is the part the learner plays.
	UserRole string `json:"userRole"`

	// CharacterRole is the part the AI character plays.
	CharacterRole string `json:"characterRole"`

	// Objective is what the learner should accomplish in the scene.
	Objective string `json:"objective"`

	// SampleExpressions are phrases the learner is encouraged to use.
	SampleExpressions []string `json:"sampleExpressions"`
}

// Selection is the raw input from scenario selection. Both fields are
// optional; PresetKey wins when it matches the catalogue.
type Selection struct {
	PresetKey string `json:"presetKey,omitempty"`
	FreeText  string `json:"freeText,omitempty"`
}

// presets is the built-in scenario catalogue.
var presets = map[string]Descriptor{
	"cafeteria": {
		Key:           "cafeteria",
		Situation:     "A school cafeteria at lunchtime, trays clattering and friends looking for seats.",
		UserRole:      "Student",
		CharacterRole: "Classmate",
		Objective:     "Order lunch and make small talk about the afternoon classes.",
		SampleExpressions: []string{
			"Is this seat taken?",
			"What are you having today?",
			"Could I get the pasta, please?",
		},
	},
	"cafe": {
		Key:           "cafe",
		Situation:     "A cozy neighbourhood cafe on a quiet morning.",
		UserRole:      "Customer",
		CharacterRole: "Barista",
		Objective:     "Order a drink and a snack, and ask about the wifi password.",
		SampleExpressions: []string{
			"Could I get a latte to go?",
			"What do you recommend?",
			"Do you have anything gluten-free?",
		},
	},
	"shopping": {
		Key:           "shopping",
		Situation:     "A clothing store during a weekend sale.",
		UserRole:      "Shopper",
		CharacterRole: "Shop assistant",
		Objective:     "Find a jacket in your size and ask about the return policy.",
		SampleExpressions: []string{
			"Do you have this in a medium?",
			"Where are the fitting rooms?",
			"Is this on sale?",
		},
	},
	"directions": {
		Key:           "directions",
		Situation:     "A busy street corner in an unfamiliar city.",
		UserRole:      "Tourist",
		CharacterRole: "Local passerby",
		Objective:     "Ask for directions to the train station and confirm how long the walk takes.",
		SampleExpressions: []string{
			"Excuse me, how do I get to the station?",
			"Is it within walking distance?",
			"Should I take a bus instead?",
		},
	},
	"interview": {
		Key:           "interview",
		Situation:     "A job interview for a position you really want.",
		UserRole:      "Candidate",
		CharacterRole: "Interviewer",
		Objective:     "Introduce yourself and answer questions about your experience.",
		SampleExpressions: []string{
			"Thank you for meeting with me.",
			"In my previous role, I was responsible for...",
			"Could you tell me more about the team?",
		},
	},
	"airport": {
		Key:           "airport",
		Situation:     "An airport check-in desk two hours before departure.",
		UserRole:      "Traveller",
		CharacterRole: "Check-in agent",
		Objective:     "Check in for your flight, drop your bag, and ask about your gate.",
		SampleExpressions: []string{
			"I'd like to check in for the flight to London.",
			"Can I get an aisle seat?",
			"Which gate does it leave from?",
		},
	},
}

// fallback is returned when the selection carries no usable input.
var fallback = Descriptor{
	Situation:         "A casual everyday conversation.",
	UserRole:          "User",
	CharacterRole:     "AI Tutor",
	Objective:         "Have a relaxed conversation and practice speaking naturally.",
	SampleExpressions: []string{},
}

// maxKeyDistance is the largest Damerau-Levenshtein distance still accepted
// as a preset key match, so that "cafetria" resolves to "cafeteria".
const maxKeyDistance = 2

// minFuzzyKeyLen is the shortest key eligible for fuzzy matching. Shorter
// keys only match exactly; at two or three characters the edit distance
// budget spans half the input, and a junk key would shadow real free text.
const minFuzzyKeyLen = 4

// Resolve maps a selection to a Descriptor. Precedence: a catalogue preset
// key (exact or within a small edit distance), then free text with generic
// role fillers, then the generic fallback. Resolve never fails.
func Resolve(sel Selection) Descriptor {
	if key := matchPreset(sel.PresetKey); key != "" {
		return presets[key]
	}

	if text := strings.TrimSpace(sel.FreeText); text != "" {
		return Descriptor{
			Situation:         text,
			UserRole:          "User",
			CharacterRole:     "AI Tutor",
			Objective:         "Practice the situation you described.",
			SampleExpressions: []string{},
		}
	}

	return fallback
}

// Keys returns the catalogue preset keys in no particular order.
func Keys() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	return out
}

// matchPreset returns the catalogue key that raw refers to, tolerating small
// typos, or "" when nothing is close enough.
func matchPreset(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if _, ok := presets[raw]; ok {
		return raw
	}
	if len(raw) < minFuzzyKeyLen {
		return ""
	}

	best := ""
	bestDist := maxKeyDistance + 1
	for key := range presets {
		d := matchr.DamerauLevenshtein(raw, key)
		if d < bestDist {
			best, bestDist = key, d
		}
	}
	if bestDist > maxKeyDistance {
		return ""
	}
	return best
}
