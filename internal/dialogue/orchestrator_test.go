package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/user"
	"github.com/talkscene/talkscene/pkg/provider/llm"
	llmmock "github.com/talkscene/talkscene/pkg/provider/llm/mock"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	sttmock "github.com/talkscene/talkscene/pkg/provider/stt/mock"
	ttsmock "github.com/talkscene/talkscene/pkg/provider/tts/mock"
)

// fakeLLM routes tutor requests by prompt so tests can script each stage
// independently of call ordering.
type fakeLLM struct {
	openingJSON  string
	evalJSON     string
	annotateJSON string
	openingErr   error
	evalErr      error
	annotateErr  error
}

func (f *fakeLLM) route(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	switch {
	case strings.Contains(req.SystemPrompt, "Open the scene"):
		if f.openingErr != nil {
			return nil, f.openingErr
		}
		return &llm.CompletionResponse{Content: f.openingJSON}, nil
	case strings.Contains(req.SystemPrompt, "annotate English sentences"):
		if f.annotateErr != nil {
			return nil, f.annotateErr
		}
		return &llm.CompletionResponse{Content: f.annotateJSON}, nil
	default:
		if f.evalErr != nil {
			return nil, f.evalErr
		}
		return &llm.CompletionResponse{Content: f.evalJSON}, nil
	}
}

const acceptedEval = `{
	"text": "One latte coming right up!",
	"emotion": "happy",
	"feedback": {"accuracyScore": 90, "suggestions": [], "needsCorrection": false, "betterExpression": ""},
	"shouldEndConversation": false
}`

const correctionEval = `{
	"text": "Sorry, could you say that again?",
	"emotion": "neutral",
	"feedback": {"accuracyScore": 35, "suggestions": ["Say: could I get a latte"], "needsCorrection": true, "betterExpression": "Could I get a latte, please?"},
	"shouldEndConversation": false
}`

const endingEval = `{
	"text": "Have a great day, goodbye!",
	"emotion": "happy",
	"feedback": {"accuracyScore": 95, "suggestions": [], "needsCorrection": false, "betterExpression": ""},
	"shouldEndConversation": true
}`

type fixture struct {
	orch   *dialogue.Orchestrator
	llm    *fakeLLM
	stt    *sttmock.Provider
	tts    *ttsmock.Provider
	ledger *usage.Ledger
	char   character.Character
	desc   scenario.Descriptor
}

func newFixture(t *testing.T, opts ...dialogue.Option) *fixture {
	t.Helper()

	f := &fixture{
		llm: &fakeLLM{
			openingJSON:  `{"text": "Welcome in! What can I get you?", "emotion": "happy"}`,
			evalJSON:     acceptedEval,
			annotateJSON: `{"translation": "Bienvenue!", "pronunciation": "WEL-kuhm"}`,
		},
		stt: &sttmock.Provider{Transcript: &stt.Transcript{Text: "I would like a latte"}},
		tts: &ttsmock.Provider{Audio: []byte("mp3-bytes")},
		char: character.Character{
			ID: "c1", OwnerID: "u1", Name: "Yuki",
			Gender: character.GenderFemale, Style: character.StyleCheerful,
		},
		desc: scenario.Resolve(scenario.Selection{PresetKey: "cafe"}),
	}

	users := user.NewMemStore()
	if err := users.Create(context.Background(), &user.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.ledger = usage.NewLedger(users, usage.NewMemStore(), nil)

	mockLLM := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return f.llm.route(req)
	}}

	f.orch = dialogue.New(
		dialogue.NewTutor(mockLLM),
		f.stt, f.tts, f.ledger, nil,
		append([]dialogue.Option{dialogue.WithRelistenDelay(0)}, opts...)...,
	)
	return f
}

func (f *fixture) start(t *testing.T) dialogue.Snapshot {
	t.Helper()
	snap, err := f.orch.StartScene(context.Background(), "u1", f.char, f.desc)
	if err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	return snap
}

func (f *fixture) submit(t *testing.T, audio []byte) *dialogue.SubmitResult {
	t.Helper()
	res, err := f.orch.SubmitAudio(context.Background(), "u1", audio, stt.FormatWebM)
	if err != nil {
		t.Fatalf("SubmitAudio: %v", err)
	}
	return res
}

func speech() []byte { return make([]byte, 2048) }

func TestStartScene(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	snap := f.start(t)

	if len(snap.Turns) != 2 {
		t.Fatalf("turns = %d, want 2 (system + character)", len(snap.Turns))
	}
	if snap.Turns[0].Speaker != dialogue.SpeakerSystem {
		t.Errorf("first turn speaker = %s, want system", snap.Turns[0].Speaker)
	}
	if snap.Turns[1].Speaker != dialogue.SpeakerCharacter {
		t.Errorf("second turn speaker = %s, want character", snap.Turns[1].Speaker)
	}
	if snap.Turns[1].Text != "Welcome in! What can I get you?" {
		t.Errorf("opening line = %q", snap.Turns[1].Text)
	}
	if snap.Turns[1].AudioRef == "" {
		t.Error("opening turn should carry synthesized audio")
	}
	if snap.Turns[1].Translation != "Bienvenue!" {
		t.Errorf("translation = %q", snap.Turns[1].Translation)
	}
	if snap.Progress != 10 {
		t.Errorf("progress = %d, want 10", snap.Progress)
	}
	if snap.State != dialogue.StateListening {
		t.Errorf("state = %s, want listening", snap.State)
	}

	// The cafe barista role pins the voice.
	if len(f.tts.SynthesizeCalls) != 1 || f.tts.SynthesizeCalls[0].Req.VoiceID != "shimmer" {
		t.Errorf("tts calls = %+v, want one with voice shimmer", f.tts.SynthesizeCalls)
	}
}

func TestStartScene_ListeningImmediately(t *testing.T) {
	t.Parallel()
	f := newFixture(t, dialogue.WithRelistenDelay(time.Hour))

	snap := f.start(t)
	if snap.State != dialogue.StateListening {
		t.Fatalf("state after start = %q, want %q", snap.State, dialogue.StateListening)
	}

	// A recording submitted straight after scene open must not be rejected
	// as busy; the reopen delay only applies after character turns.
	res := f.submit(t, speech())
	if res.Status != dialogue.SubmitAccepted {
		t.Errorf("status = %q, want %q", res.Status, dialogue.SubmitAccepted)
	}
}

func TestStartScene_DegradedOpening(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.llm.openingErr = errors.New("model down")

	snap := f.start(t)

	if len(snap.Turns) != 2 {
		t.Fatalf("turns = %d, want 2 even when degraded", len(snap.Turns))
	}
	if snap.Turns[1].Text == "" {
		t.Error("degraded opening must still carry a greeting")
	}
	if snap.Turns[1].AudioRef != "" {
		t.Error("degraded opening must not carry audio")
	}
	if snap.Progress != 10 || snap.State != dialogue.StateListening {
		t.Errorf("progress/state = %d/%s, want 10/listening", snap.Progress, snap.State)
	}
}

func TestSubmitAudio_TooShort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	before := f.start(t)

	res := f.submit(t, make([]byte, 499))

	if res.Status != dialogue.SubmitIgnored {
		t.Fatalf("status = %s, want ignored", res.Status)
	}
	after, _ := f.orch.Session("u1")
	if len(after.Turns) != len(before.Turns) {
		t.Errorf("turns appended: %d -> %d", len(before.Turns), len(after.Turns))
	}
	if after.Progress != before.Progress {
		t.Errorf("progress changed: %d -> %d", before.Progress, after.Progress)
	}
	if len(f.stt.Calls) != 0 {
		t.Error("short audio must not reach transcription")
	}
}

func TestSubmitAudio_EmptyTranscript(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.stt.Transcript = &stt.Transcript{Text: "   "}
	before := f.start(t)

	res := f.submit(t, speech())

	if res.Status != dialogue.SubmitEmpty {
		t.Fatalf("status = %s, want empty", res.Status)
	}
	if res.State != dialogue.StateListening {
		t.Errorf("state = %s, want listening (recoverable)", res.State)
	}
	after, _ := f.orch.Session("u1")
	if len(after.Turns) != len(before.Turns) {
		t.Error("empty transcript must not append a turn")
	}
}

func TestSubmitAudio_Accepted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	res := f.submit(t, speech())

	if res.Status != dialogue.SubmitAccepted {
		t.Fatalf("status = %s, want accepted", res.Status)
	}
	if res.UserTurn == nil || res.UserTurn.Text != "I would like a latte" {
		t.Fatalf("user turn = %+v", res.UserTurn)
	}
	if res.UserTurn.Feedback == nil || res.UserTurn.Feedback.AccuracyScore != 90 {
		t.Errorf("feedback = %+v", res.UserTurn.Feedback)
	}
	if res.CharacterTurn == nil || res.CharacterTurn.Text != "One latte coming right up!" {
		t.Fatalf("character turn = %+v", res.CharacterTurn)
	}
	if res.CharacterTurn.AudioRef == "" {
		t.Error("character turn should carry audio")
	}
	if res.Progress != 25 {
		t.Errorf("progress = %d, want 25", res.Progress)
	}

	snap, _ := f.orch.Session("u1")
	if snap.AwaitingRetry {
		t.Error("accepted turn must clear awaitingRetry")
	}
}

func TestSubmitAudio_Correction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.llm.evalJSON = correctionEval
	f.start(t)

	res := f.submit(t, speech())

	if res.Status != dialogue.SubmitCorrection {
		t.Fatalf("status = %s, want correction", res.Status)
	}
	if res.CharacterTurn != nil {
		t.Error("correction must not append a character turn")
	}
	if res.Feedback == nil || !res.Feedback.NeedsCorrection || res.Feedback.BetterExpression == "" {
		t.Errorf("feedback = %+v", res.Feedback)
	}
	if res.Progress != 10 {
		t.Errorf("progress = %d, want unchanged 10", res.Progress)
	}

	snap, _ := f.orch.Session("u1")
	if !snap.AwaitingRetry {
		t.Error("awaitingRetry should be set")
	}
	if snap.State != dialogue.StateListening {
		t.Errorf("state = %s, want listening for resubmission", snap.State)
	}
	if last := snap.Turns[len(snap.Turns)-1]; last.Speaker != dialogue.SpeakerUser {
		t.Errorf("last turn speaker = %s, want user awaiting resubmission", last.Speaker)
	}

	// Resubmission that passes clears the retry flag and advances.
	f.llm.evalJSON = acceptedEval
	res = f.submit(t, speech())
	if res.Status != dialogue.SubmitAccepted {
		t.Fatalf("resubmit status = %s", res.Status)
	}
	snap, _ = f.orch.Session("u1")
	if snap.AwaitingRetry {
		t.Error("awaitingRetry should clear on accepted resubmission")
	}
	if snap.Progress != 25 {
		t.Errorf("progress = %d, want 25", snap.Progress)
	}
}

func TestTurnAlternation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	for range 3 {
		f.submit(t, speech())
	}

	snap, _ := f.orch.Session("u1")
	// system, character, then user/character pairs.
	if snap.Turns[0].Speaker != dialogue.SpeakerSystem {
		t.Fatalf("turn 0 = %s", snap.Turns[0].Speaker)
	}
	for i := 1; i < len(snap.Turns); i++ {
		want := dialogue.SpeakerCharacter
		if i%2 == 0 {
			want = dialogue.SpeakerUser
		}
		if snap.Turns[i].Speaker != want {
			t.Errorf("turn %d speaker = %s, want %s", i, snap.Turns[i].Speaker, want)
		}
	}
}

func TestProgressCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	// 10 + 7*15 would be 115 without the cap.
	for range 7 {
		f.submit(t, speech())
	}

	snap, _ := f.orch.Session("u1")
	if snap.Progress != 100 {
		t.Errorf("progress = %d, want capped 100", snap.Progress)
	}
}

func TestSceneEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.llm.evalJSON = endingEval
	f.start(t)

	res := f.submit(t, speech())
	if res.Status != dialogue.SubmitEnded {
		t.Fatalf("status = %s, want ended", res.Status)
	}
	if res.State != dialogue.StateEnded {
		t.Errorf("state = %s, want ended", res.State)
	}

	// Further recordings are rejected, not queued.
	_, err := f.orch.SubmitAudio(context.Background(), "u1", speech(), stt.FormatWebM)
	var busy *dialogue.ErrBusy
	if !errors.As(err, &busy) {
		t.Fatalf("submit after end: want ErrBusy, got %v", err)
	}
}

func TestDegradedAnnotationAndTTS(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.llm.annotateErr = errors.New("model down")
	f.tts.SynthesizeErr = errors.New("synth down")
	f.start(t)

	res := f.submit(t, speech())

	if res.Status != dialogue.SubmitAccepted {
		t.Fatalf("status = %s; degraded annotation/tts must not fail the turn", res.Status)
	}
	if res.CharacterTurn.AudioRef != "" {
		t.Error("audioRef should be empty when synthesis failed")
	}
	if res.CharacterTurn.Translation != dialogue.AnnotationPlaceholder {
		t.Errorf("translation = %q, want placeholder", res.CharacterTurn.Translation)
	}
	if res.CharacterTurn.PronunciationGuide != dialogue.AnnotationPlaceholder {
		t.Errorf("pronunciation = %q, want placeholder", res.CharacterTurn.PronunciationGuide)
	}
}

func TestQuotaDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	// Exhaust the free conversation quota.
	for range 10 {
		if err := f.ledger.Increment(context.Background(), "u1", usage.MetricConversation); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	before, _ := f.orch.Session("u1")

	_, err := f.orch.SubmitAudio(context.Background(), "u1", speech(), stt.FormatWebM)
	var qe *usage.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("want QuotaError, got %v", err)
	}
	if qe.Quota.Current != 10 || qe.Quota.Limit != 10 {
		t.Errorf("quota = %d/%d", qe.Quota.Current, qe.Quota.Limit)
	}

	after, _ := f.orch.Session("u1")
	if len(after.Turns) != len(before.Turns) {
		t.Error("denied turn must not append")
	}
	if after.State != dialogue.StateListening {
		t.Errorf("state = %s, want listening after denial", after.State)
	}
}

func TestAutoListenToggle(t *testing.T) {
	t.Parallel()
	// A long delay keeps the reopen timer pending so the toggle has
	// something to cancel.
	f := newFixture(t, dialogue.WithRelistenDelay(time.Hour))
	snap := f.start(t)

	if snap.AutoListen {
		t.Fatal("hands-free mode should be off until explicitly enabled")
	}

	// Without hands-free mode an accepted turn returns to Listening at
	// once, regardless of the configured delay.
	res := f.submit(t, speech())
	if res.State != dialogue.StateListening {
		t.Fatalf("state after turn = %s, want listening", res.State)
	}

	snap, err := f.orch.SetAutoListen("u1", true)
	if err != nil {
		t.Fatalf("SetAutoListen: %v", err)
	}
	if !snap.AutoListen {
		t.Fatal("auto-listen should be on")
	}

	// Hands-free keeps the mic closed until the reopen timer fires.
	res = f.submit(t, speech())
	if res.State == dialogue.StateListening {
		t.Fatal("state should still await the reopen timer")
	}

	// Turning the toggle off cancels the pending timer and reopens capture
	// immediately.
	snap, err = f.orch.SetAutoListen("u1", false)
	if err != nil {
		t.Fatalf("SetAutoListen: %v", err)
	}
	if snap.AutoListen {
		t.Error("auto-listen should be off")
	}
	if snap.State != dialogue.StateListening {
		t.Errorf("state = %s, want immediate listening after toggle-off", snap.State)
	}

	if _, err := f.orch.SetAutoListen("ghost", true); !errors.Is(err, dialogue.ErrNoSession) {
		t.Errorf("SetAutoListen(ghost): want ErrNoSession, got %v", err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)
	f.submit(t, speech())

	snap, err := f.orch.Reset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(snap.Turns) != 2 {
		t.Fatalf("turns after reset = %d, want fresh system + character", len(snap.Turns))
	}
	if snap.Progress != 10 {
		t.Errorf("progress = %d, want 10", snap.Progress)
	}
	if snap.Scenario.Key != "cafe" {
		t.Errorf("scenario key = %q, want the same scenario", snap.Scenario.Key)
	}
}

func TestNoSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if _, err := f.orch.SubmitAudio(context.Background(), "ghost", speech(), stt.FormatWebM); !errors.Is(err, dialogue.ErrNoSession) {
		t.Errorf("SubmitAudio: want ErrNoSession, got %v", err)
	}
	if _, err := f.orch.Session("ghost"); !errors.Is(err, dialogue.ErrNoSession) {
		t.Errorf("Session: want ErrNoSession, got %v", err)
	}
	if _, err := f.orch.Reset(context.Background(), "ghost"); !errors.Is(err, dialogue.ErrNoSession) {
		t.Errorf("Reset: want ErrNoSession, got %v", err)
	}
}

func TestEndScene(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	events, cancel, err := f.orch.Subscribe("u1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	f.orch.EndScene("u1")

	if _, err := f.orch.Session("u1"); !errors.Is(err, dialogue.ErrNoSession) {
		t.Errorf("Session after end: want ErrNoSession, got %v", err)
	}
	// The event stream terminates.
	for range events {
	}

	// Ending again is harmless.
	f.orch.EndScene("u1")
}

func TestSubscribeReceivesTurns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.start(t)

	events, cancel, err := f.orch.Subscribe("u1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	f.submit(t, speech())

	var sawUser, sawCharacter bool
	for done := false; !done; {
		select {
		case ev := <-events:
			if ev.Type == dialogue.EventTurn && ev.Turn != nil {
				switch ev.Turn.Speaker {
				case dialogue.SpeakerUser:
					sawUser = true
				case dialogue.SpeakerCharacter:
					sawCharacter = true
				}
			}
		default:
			done = true
		}
	}
	if !sawUser || !sawCharacter {
		t.Errorf("events: sawUser=%v sawCharacter=%v", sawUser, sawCharacter)
	}
}
