package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/observe"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/voice"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	"github.com/talkscene/talkscene/pkg/provider/tts"
)

// Tuning defaults. Override via the corresponding Options.
const (
	// MinAudioBytes is the smallest recording worth transcribing; anything
	// shorter is treated as an accidental trigger.
	MinAudioBytes = 500

	// DefaultHistoryWindow is how many trailing turns accompany an
	// evaluation request.
	DefaultHistoryWindow = 6

	// DefaultRelistenDelay is the pause before the microphone reopens after
	// a character reply, giving the UI time to play the audio.
	DefaultRelistenDelay = 2 * time.Second

	// DefaultCallTimeout bounds each upstream call within a turn.
	DefaultCallTimeout = 30 * time.Second

	// defaultGreeting replaces the opening line when generation fails.
	defaultGreeting = "Hi! Ready when you are."
)

// ErrNoSession is returned for operations on a user without an active scene.
var ErrNoSession = errors.New("dialogue: no active session")

// ErrBusy is returned when a recording arrives while a prior turn is still
// processing, or after the scene ended. Turn order decides conversational
// and scoring context, so overlapping turns are rejected rather than queued.
type ErrBusy struct {
	State State
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("dialogue: cannot accept a recording in state %q", e.State)
}

// SubmitStatus classifies the outcome of one recording submission.
type SubmitStatus string

const (
	// SubmitAccepted means the turn advanced the conversation.
	SubmitAccepted SubmitStatus = "accepted"
	// SubmitIgnored means the recording was too short to be speech.
	SubmitIgnored SubmitStatus = "ignored"
	// SubmitEmpty means transcription produced no text; the user should
	// try again.
	SubmitEmpty SubmitStatus = "empty"
	// SubmitCorrection means the utterance needs a fix; the character did
	// not reply and the user must resubmit.
	SubmitCorrection SubmitStatus = "correction"
	// SubmitEnded means the turn was accepted and closed the scene.
	SubmitEnded SubmitStatus = "ended"
)

// SubmitResult is the outcome of SubmitAudio.
type SubmitResult struct {
	Status   SubmitStatus `json:"status"`
	UserTurn *Turn        `json:"userTurn,omitempty"`
	// CharacterTurn is set only on accepted turns.
	CharacterTurn *Turn `json:"characterTurn,omitempty"`
	// Feedback duplicates the user turn's feedback for convenience.
	Feedback *Feedback `json:"feedback,omitempty"`
	Progress int       `json:"progress"`
	State    State     `json:"state"`
}

// Orchestrator drives practice scenes: it owns the per-user sessions and
// runs every turn through transcription, evaluation, and synthesis. All
// methods are safe for concurrent use; turns within one session are
// serialised by the session state machine.
type Orchestrator struct {
	tutor   *Tutor
	stt     stt.Provider
	tts     tts.Provider
	ledger  *usage.Ledger
	metrics *observe.Metrics
	log     *slog.Logger

	sessions *manager

	historyWindow int
	relistenDelay time.Duration
	callTimeout   time.Duration
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithHistoryWindow sets how many trailing turns are sent with an
// evaluation request.
func WithHistoryWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyWindow = n
		}
	}
}

// WithRelistenDelay sets the pause before the microphone reopens after a
// character reply.
func WithRelistenDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.relistenDelay = d
		}
	}
}

// WithCallTimeout bounds each upstream call within a turn.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithMetrics attaches turn metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator over the given collaborators.
func New(tutor *Tutor, sttProv stt.Provider, ttsProv tts.Provider, ledger *usage.Ledger, log *slog.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		tutor:         tutor,
		stt:           sttProv,
		tts:           ttsProv,
		ledger:        ledger,
		log:           log,
		sessions:      newManager(),
		historyWindow: DefaultHistoryWindow,
		relistenDelay: DefaultRelistenDelay,
		callTimeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartScene opens a new scene for the user, replacing any prior one. The
// opening character line and its audio are produced best-effort: on failure
// the scene still starts with a fixed greeting and no audio.
func (o *Orchestrator) StartScene(ctx context.Context, userID string, char character.Character, desc scenario.Descriptor) (Snapshot, error) {
	voiceID := voice.Select(desc.CharacterRole, string(char.Gender), string(char.Style))
	sess := newSession(uuid.NewString(), userID, char, desc, voiceID)

	if old := o.sessions.swap(userID, sess); old != nil {
		old.stopRelisten()
		old.closeSubs()
	}

	if err := o.openScene(ctx, sess); err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(), nil
}

// openScene produces the system turn, the opening character turn, and moves
// the session to Listening.
func (o *Orchestrator) openScene(ctx context.Context, sess *session) error {
	sess.appendTurn(Turn{
		Speaker: SpeakerSystem,
		Text: fmt.Sprintf("Scene: %s You are the %s; %s is the %s. Objective: %s",
			sess.desc.Situation, sess.desc.UserRole, sess.char.Name, sess.desc.CharacterRole, sess.desc.Objective),
	})

	opening := o.openingLine(ctx, sess)
	charTurn := Turn{
		Speaker: SpeakerCharacter,
		Text:    opening.Value.Text,
		Emotion: opening.Value.Emotion,
	}

	if !opening.Degraded {
		audio, ann := o.speakAndAnnotate(ctx, sess, charTurn.Text)
		charTurn.AudioRef = audio.Value
		charTurn.Translation = ann.Value.Translation
		charTurn.PronunciationGuide = ann.Value.Pronunciation
	}

	sess.appendTurn(charTurn)

	sess.mu.Lock()
	sess.progress = progressStart
	sess.mu.Unlock()

	// A fresh scene accepts a recording right away; the delayed reopen only
	// applies after character turns, where the UI is still playing audio.
	sess.setState(StateListening)
	return nil
}

// openingLine asks the tutor for the first line, degrading to the fixed
// greeting on any failure.
func (o *Orchestrator) openingLine(ctx context.Context, sess *session) Outcome[Opening] {
	var op *Opening
	err := o.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		op, err = o.tutor.OpeningLine(callCtx, sess.char, sess.desc)
		return err
	})
	if err != nil {
		o.log.Warn("opening line degraded", "session_id", sess.id, "error", err)
		return degraded(Opening{Text: defaultGreeting, Emotion: "neutral"}, err.Error())
	}
	return ok(*op)
}

// SubmitAudio runs one user recording through the turn pipeline.
func (o *Orchestrator) SubmitAudio(ctx context.Context, userID string, audio []byte, format stt.AudioFormat) (*SubmitResult, error) {
	sess := o.sessions.get(userID)
	if sess == nil {
		return nil, ErrNoSession
	}

	// Claim the turn slot.
	sess.mu.Lock()
	if !sess.state.canSubmit() {
		st := sess.state
		sess.mu.Unlock()
		return nil, &ErrBusy{State: st}
	}
	sess.state = StateProcessing
	sess.mu.Unlock()
	sess.stopRelisten()
	sess.publish(Event{Type: EventState, State: StateProcessing})

	res, err := o.runTurn(ctx, sess, audio, format)
	if err != nil {
		// The pipeline only errors on quota denial or a dead transcription
		// backend; the session stays usable.
		sess.setState(StateListening)
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *session, audio []byte, format stt.AudioFormat) (*SubmitResult, error) {
	started := time.Now()

	// Too-short recordings are discarded without a turn.
	if len(audio) < MinAudioBytes {
		sess.setState(StateListening)
		return &SubmitResult{Status: SubmitIgnored, Progress: sess.snapshot().Progress, State: StateListening}, nil
	}

	transcript, err := o.transcribe(ctx, sess, audio, format)
	if err != nil {
		return nil, err
	}
	if transcript == "" {
		sess.publish(Event{Type: EventNotice, Notice: "didn't catch that"})
		sess.setState(StateListening)
		return &SubmitResult{Status: SubmitEmpty, Progress: sess.snapshot().Progress, State: StateListening}, nil
	}

	// Conversation quota gates the evaluation call.
	if err := o.checkQuota(ctx, sess.userID, usage.MetricConversation); err != nil {
		return nil, err
	}

	history := sess.lastTurns(o.historyWindow)
	eval, err := o.evaluate(ctx, sess, history, transcript)
	if err != nil {
		return nil, err
	}
	o.incrementQuota(ctx, sess.userID, usage.MetricConversation)

	userTurn := Turn{Speaker: SpeakerUser, Text: transcript, Feedback: &eval.Feedback}
	sess.appendTurn(userTurn)

	if eval.Feedback.NeedsCorrection {
		sess.mu.Lock()
		sess.awaitingRetry = true
		sess.mu.Unlock()
		sess.setState(StateListening)
		if o.metrics != nil {
			o.metrics.RecordTurn(ctx, string(SubmitCorrection), time.Since(started))
		}
		return &SubmitResult{
			Status:   SubmitCorrection,
			UserTurn: &userTurn,
			Feedback: &eval.Feedback,
			Progress: sess.snapshot().Progress,
			State:    StateListening,
		}, nil
	}

	charTurn := Turn{Speaker: SpeakerCharacter, Text: eval.Text, Emotion: eval.Emotion}
	ttsOut, ann := o.speakAndAnnotate(ctx, sess, eval.Text)
	charTurn.AudioRef = ttsOut.Value
	charTurn.Translation = ann.Value.Translation
	charTurn.PronunciationGuide = ann.Value.Pronunciation
	sess.appendTurn(charTurn)

	sess.mu.Lock()
	sess.awaitingRetry = false
	sess.progress += progressStep
	if sess.progress > progressMax {
		sess.progress = progressMax
	}
	progress := sess.progress
	sess.mu.Unlock()

	status := SubmitAccepted
	if eval.ShouldEnd {
		status = SubmitEnded
		sess.setState(StateEnded)
	} else {
		o.scheduleRelisten(sess)
	}

	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, string(status), time.Since(started))
	}

	return &SubmitResult{
		Status:        status,
		UserTurn:      &userTurn,
		CharacterTurn: &charTurn,
		Feedback:      &eval.Feedback,
		Progress:      progress,
		State:         sess.snapshot().State,
	}, nil
}

// transcribe runs STT with retry. An empty transcript is not an error.
func (o *Orchestrator) transcribe(ctx context.Context, sess *session, audio []byte, format stt.AudioFormat) (string, error) {
	var tr *stt.Transcript
	err := o.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		tr, err = o.stt.Transcribe(callCtx, stt.Request{
			Audio:  audio,
			Format: format,
			Prompt: sess.desc.Situation,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("dialogue: transcription: %w", err)
	}
	return trim(tr.Text), nil
}

// evaluate runs the tutor with retry.
func (o *Orchestrator) evaluate(ctx context.Context, sess *session, history []Turn, userText string) (*Evaluation, error) {
	var eval *Evaluation
	err := o.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		eval, err = o.tutor.Evaluate(callCtx, sess.char, sess.desc, history, userText)
		return err
	})
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// speakAndAnnotate synthesizes speech and fetches annotations in parallel.
// Both are best-effort: a failure degrades its half of the result, never the
// turn. TTS is additionally gated by the tts quota; a denied quota degrades
// to silent playback rather than blocking the turn.
func (o *Orchestrator) speakAndAnnotate(ctx context.Context, sess *session, text string) (Outcome[string], Outcome[Annotation]) {
	audioOut := degraded("", "not attempted")
	annOut := degraded(Annotation{
		Translation:   AnnotationPlaceholder,
		Pronunciation: AnnotationPlaceholder,
	}, "not attempted")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := o.checkQuota(gctx, sess.userID, usage.MetricTTS); err != nil {
			audioOut = degraded("", err.Error())
			return nil
		}
		var audio []byte
		err := o.withRetry(gctx, func(callCtx context.Context) error {
			var err error
			audio, err = o.tts.Synthesize(callCtx, tts.Request{Text: text, VoiceID: sess.voiceID})
			return err
		})
		if err != nil {
			o.log.Warn("tts degraded", "session_id", sess.id, "error", err)
			audioOut = degraded("", err.Error())
			return nil
		}
		o.incrementQuota(gctx, sess.userID, usage.MetricTTS)
		audioOut = ok(encodeAudioRef(audio))
		return nil
	})

	g.Go(func() error {
		var ann *Annotation
		err := o.withRetry(gctx, func(callCtx context.Context) error {
			var err error
			ann, err = o.tutor.Annotate(callCtx, text)
			return err
		})
		if err != nil {
			o.log.Warn("annotation degraded", "session_id", sess.id, "error", err)
			return nil
		}
		annOut = ok(*ann)
		return nil
	})

	// The goroutines never return errors; they record degradation instead.
	_ = g.Wait()
	return audioOut, annOut
}

// Reset clears the scene and replays startup with the same character and
// scenario.
func (o *Orchestrator) Reset(ctx context.Context, userID string) (Snapshot, error) {
	sess := o.sessions.get(userID)
	if sess == nil {
		return Snapshot{}, ErrNoSession
	}
	sess.stopRelisten()

	sess.mu.Lock()
	sess.turns = nil
	sess.progress = 0
	sess.awaitingRetry = false
	sess.state = StateAwaitingStart
	sess.mu.Unlock()
	sess.publish(Event{Type: EventState, State: StateAwaitingStart})

	if err := o.openScene(ctx, sess); err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(), nil
}

// EndScene closes the user's scene. Ending without a scene is not an error.
func (o *Orchestrator) EndScene(userID string) {
	sess := o.sessions.remove(userID)
	if sess == nil {
		return
	}
	sess.stopRelisten()
	sess.setState(StateEnded)
	sess.closeSubs()
}

// SetAutoListen toggles automatic microphone reopening after character
// turns. Disabling cancels a pending reopen timer and moves straight to
// Listening so manual capture still works.
func (o *Orchestrator) SetAutoListen(userID string, enabled bool) (Snapshot, error) {
	sess := o.sessions.get(userID)
	if sess == nil {
		return Snapshot{}, ErrNoSession
	}

	sess.mu.Lock()
	sess.autoListen = enabled
	pending := sess.relisten != nil
	st := sess.state
	sess.mu.Unlock()

	// A pending timer means the last turn already finished; SubmitAudio
	// cancels the timer when it claims the turn slot.
	if !enabled && pending {
		sess.stopRelisten()
		if st != StateEnded {
			sess.setState(StateListening)
		}
	}
	return sess.snapshot(), nil
}

// Session returns a snapshot of the user's active scene.
func (o *Orchestrator) Session(userID string) (Snapshot, error) {
	sess := o.sessions.get(userID)
	if sess == nil {
		return Snapshot{}, ErrNoSession
	}
	return sess.snapshot(), nil
}

// Subscribe attaches a stream consumer to the user's active scene.
func (o *Orchestrator) Subscribe(userID string) (<-chan Event, func(), error) {
	sess := o.sessions.get(userID)
	if sess == nil {
		return nil, nil, ErrNoSession
	}
	ch, cancel := sess.subscribe()
	return ch, cancel, nil
}

// scheduleRelisten arms the microphone reopen timer and moves to Listening
// when it fires. The session publishes the state event so the UI reopens
// capture in sync. With auto-listen off the session becomes Listening at
// once; the client decides when to capture.
func (o *Orchestrator) scheduleRelisten(sess *session) {
	sess.mu.Lock()
	auto := sess.autoListen
	sess.mu.Unlock()

	if !auto || o.relistenDelay == 0 {
		sess.setState(StateListening)
		return
	}

	sess.mu.Lock()
	if sess.relisten != nil {
		sess.relisten.Stop()
	}
	sess.relisten = time.AfterFunc(o.relistenDelay, func() {
		sess.mu.Lock()
		// A turn that started meanwhile owns the state.
		if sess.state == StateProcessing || sess.state == StateEnded {
			sess.mu.Unlock()
			return
		}
		sess.state = StateListening
		sess.relisten = nil
		sess.mu.Unlock()
		sess.publish(Event{Type: EventState, State: StateListening})
	})
	sess.mu.Unlock()
}

// withRetry runs fn with the per-call timeout, retrying once on failure.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	call := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
		return fn(callCtx)
	}

	err := call()
	if err == nil || ctx.Err() != nil {
		return err
	}
	return call()
}

// checkQuota wraps a ledger denial in a *usage.QuotaError. Ledger lookup
// failures deny as well; metering must not fail open.
func (o *Orchestrator) checkQuota(ctx context.Context, userID string, metric usage.Metric) error {
	q, err := o.ledger.CheckQuota(ctx, userID, metric)
	if err != nil {
		return fmt.Errorf("dialogue: quota check: %w", err)
	}
	if !q.Allowed {
		return &usage.QuotaError{Metric: metric, Quota: q}
	}
	return nil
}

// incrementQuota records consumption after a successful upstream call. A
// failed increment only logs; the user already received the result.
func (o *Orchestrator) incrementQuota(ctx context.Context, userID string, metric usage.Metric) {
	if err := o.ledger.Increment(ctx, userID, metric); err != nil {
		o.log.Error("usage increment failed", "user_id", userID, "metric", metric, "error", err)
	}
}
