package dialogue

// State is the scene lifecycle position. AwaitingRetry is tracked separately
// on the session because it modifies Listening rather than replacing it.
type State string

const (
	// StateAwaitingStart is the state before the opening line has been
	// produced.
	StateAwaitingStart State = "awaiting_start"

	// StateListening accepts a user recording.
	StateListening State = "listening"

	// StateProcessing runs one turn through transcription, evaluation, and
	// synthesis. No second turn may enter while in this state.
	StateProcessing State = "processing"

	// StateEnded is terminal until Reset.
	StateEnded State = "ended"
)

// canSubmit reports whether a user recording is acceptable in s.
func (s State) canSubmit() bool {
	return s == StateListening
}
