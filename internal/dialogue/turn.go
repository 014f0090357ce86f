// Package dialogue implements the practice conversation engine: scene
// startup, the user turn loop with correction handling, progress tracking,
// and per-user session management.
package dialogue

// Speaker identifies who produced a turn.
type Speaker string

const (
	// SpeakerSystem marks the scene-context turn emitted at startup.
	SpeakerSystem Speaker = "system"
	// SpeakerUser marks a transcribed learner utterance.
	SpeakerUser Speaker = "user"
	// SpeakerCharacter marks an AI character reply.
	SpeakerCharacter Speaker = "character"
)

// Feedback is the tutor's judgement of one user utterance.
type Feedback struct {
	// AccuracyScore grades the utterance from 0 to 100.
	AccuracyScore int `json:"accuracyScore"`

	// Suggestions are short improvement hints.
	Suggestions []string `json:"suggestions,omitempty"`

	// NeedsCorrection, when true, pauses the exchange: the character will
	// not reply until the user resubmits the utterance.
	NeedsCorrection bool `json:"needsCorrection"`

	// BetterExpression is a model rephrasing of the utterance, when the
	// tutor offers one.
	BetterExpression string `json:"betterExpression,omitempty"`
}

// Turn is one utterance in a scene. Turns are append-only; a turn is never
// mutated after it is appended.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`

	// AudioRef points at synthesized speech for character turns. Empty when
	// synthesis was skipped or degraded.
	AudioRef string `json:"audioRef,omitempty"`

	// Translation and PronunciationGuide are best-effort annotations on
	// character turns. They carry [AnnotationPlaceholder] when the
	// annotation call failed.
	Translation        string `json:"translation,omitempty"`
	PronunciationGuide string `json:"pronunciationGuide,omitempty"`

	// Feedback is present only on user turns, after evaluation.
	Feedback *Feedback `json:"feedback,omitempty"`

	// Emotion is the character's mood for the turn (e.g., "happy").
	Emotion string `json:"emotion,omitempty"`
}

// AnnotationPlaceholder substitutes a failed translation or pronunciation
// annotation so the turn still renders.
const AnnotationPlaceholder = "(unavailable)"

// Outcome wraps a value produced by a degradable upstream call. Degraded
// outcomes carry a fallback value and the reason the real call failed.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// ok wraps a successful value.
func ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// degraded wraps a fallback value with the failure reason.
func degraded[T any](fallback T, reason string) Outcome[T] {
	return Outcome[T]{Value: fallback, Degraded: true, Reason: reason}
}
