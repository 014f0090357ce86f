package dialogue_test

import (
	"context"
	"testing"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/pkg/provider/llm"
	llmmock "github.com/talkscene/talkscene/pkg/provider/llm/mock"
)

func tutorFixtures() (character.Character, scenario.Descriptor) {
	char := character.Character{Name: "Yuki", Gender: character.GenderFemale, Style: character.StyleCheerful}
	return char, scenario.Resolve(scenario.Selection{PresetKey: "cafe"})
}

func TestTutorEvaluate_FencedJSON(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + acceptedEval + "\n```"}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	eval, err := tut.Evaluate(context.Background(), char, desc, nil, "a latte please")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Text != "One latte coming right up!" {
		t.Errorf("text = %q", eval.Text)
	}
	if eval.Feedback.AccuracyScore != 90 {
		t.Errorf("accuracyScore = %d, want 90", eval.Feedback.AccuracyScore)
	}
}

func TestTutorEvaluate_SalvagesPlainText(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Sure, one latte coming up."}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	eval, err := tut.Evaluate(context.Background(), char, desc, nil, "a latte please")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Text != "Sure, one latte coming up." {
		t.Errorf("text = %q, want the raw reply", eval.Text)
	}
	if eval.Feedback.NeedsCorrection {
		t.Error("salvaged reply must not demand a correction")
	}
	if eval.Feedback.AccuracyScore != 70 {
		t.Errorf("accuracyScore = %d, want the neutral 70", eval.Feedback.AccuracyScore)
	}
}

func TestTutorEvaluate_EmptyResponse(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "   "}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	if _, err := tut.Evaluate(context.Background(), char, desc, nil, "hello"); err == nil {
		t.Fatal("want error for empty model response")
	}
}

func TestTutorEvaluate_ClampsScore(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"text": "ok", "emotion": "neutral",
		"feedback": {"accuracyScore": 250, "suggestions": [], "needsCorrection": false, "betterExpression": ""},
		"shouldEndConversation": false
	}`}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	eval, err := tut.Evaluate(context.Background(), char, desc, nil, "hello")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Feedback.AccuracyScore != 100 {
		t.Errorf("accuracyScore = %d, want clamped 100", eval.Feedback.AccuracyScore)
	}
}

func TestTutorEvaluate_HistoryRoles(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: acceptedEval}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	history := []dialogue.Turn{
		{Speaker: dialogue.SpeakerSystem, Text: "scene context"},
		{Speaker: dialogue.SpeakerCharacter, Text: "What can I get you?"},
		{Speaker: dialogue.SpeakerUser, Text: "Hmm, let me think."},
	}
	if _, err := tut.Evaluate(context.Background(), char, desc, history, "a latte please"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	msgs := mock.CompleteCalls[0].Req.Messages
	// System turns are dropped; the rest map to chat roles, with the new
	// utterance appended last.
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[0].Role != "assistant" || msgs[1].Role != "user" {
		t.Errorf("history roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[2].Role != "user" || msgs[2].Content != "a latte please" {
		t.Errorf("last message = %+v", msgs[2])
	}
}

func TestTutorOpeningLine_Salvage(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Welcome in!"}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	op, err := tut.OpeningLine(context.Background(), char, desc)
	if err != nil {
		t.Fatalf("OpeningLine: %v", err)
	}
	if op.Text != "Welcome in!" {
		t.Errorf("text = %q", op.Text)
	}
	if op.Emotion != "neutral" {
		t.Errorf("emotion = %q, want neutral fallback", op.Emotion)
	}
}

func TestTutorScriptedDialogue(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"lines": ["Hi there!", "What can I get you?", "Coming right up."],
		"focus_phrases": ["Could I get", "to go", "How much is"]
	}`}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	script, err := tut.ScriptedDialogue(context.Background(), char, desc, "beginner")
	if err != nil {
		t.Fatalf("ScriptedDialogue: %v", err)
	}
	if len(script.Lines) != 3 || len(script.FocusPhrases) != 3 {
		t.Fatalf("script = %+v, want 3 lines and 3 phrases", script)
	}
}

func TestTutorScriptedDialogue_PadsShortResponse(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"lines": ["Hi there!"],
		"focus_phrases": ["Could I get", "to go", "How much is", "extra"]
	}`}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	script, err := tut.ScriptedDialogue(context.Background(), char, desc, "")
	if err != nil {
		t.Fatalf("ScriptedDialogue: %v", err)
	}
	if len(script.Lines) != 3 || len(script.FocusPhrases) != 3 {
		t.Fatalf("script = %+v, want exactly 3 of each", script)
	}
	if script.Lines[2] != "Hi there!" {
		t.Errorf("padded line = %q, want the last given line repeated", script.Lines[2])
	}
}

func TestTutorComposeBackground(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"backgroundSetting": "behind a cafe counter",
		"appropriateOutfit": "a green apron",
		"characterPose": "leaning on the counter",
		"atmosphere": "warm morning light"
	}`}}
	tut := dialogue.NewTutor(mock)
	char, desc := tutorFixtures()

	bg, err := tut.ComposeBackground(context.Background(), char, desc)
	if err != nil {
		t.Fatalf("ComposeBackground: %v", err)
	}
	want := "behind a cafe counter, wearing a green apron, leaning on the counter, warm morning light"
	if bg.CombinedPrompt != want {
		t.Errorf("combinedPrompt = %q, want %q", bg.CombinedPrompt, want)
	}
}

func TestTutorAnnotate(t *testing.T) {
	t.Parallel()
	mock := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"translation": "Bienvenue!", "pronunciation": "WEL-kuhm"}`}}
	tut := dialogue.NewTutor(mock)

	ann, err := tut.Annotate(context.Background(), "Welcome in!")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if ann.Translation != "Bienvenue!" || ann.Pronunciation != "WEL-kuhm" {
		t.Errorf("annotation = %+v", ann)
	}
}
