package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/pkg/provider/llm"
)

const (
	openingTemperature  = 0.8
	evaluateTemperature = 0.5
	annotateTemperature = 0.2
)

// openingPromptTemplate asks the model for the character's first line.
const openingPromptTemplate = `You are %s, a %s %s character in an English conversation practice app.

Scene: %s
Your role: %s. The learner's role: %s.
Learner's objective: %s

Open the scene with one short, natural line in English that invites the learner to speak. Stay in character.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "text": "<your opening line>",
  "emotion": "<one word, e.g. happy, neutral, curious>"
}`

// evaluatePromptTemplate asks the model for a reply plus utterance feedback.
const evaluatePromptTemplate = `You are %s, a %s %s character in an English conversation practice app, and also a language tutor evaluating the learner's latest utterance.

Scene: %s
Your role: %s. The learner's role: %s.
Learner's objective: %s

Rules:
- Reply in character with one or two short natural sentences.
- Grade the learner's utterance: accuracyScore 0-100.
- Set needsCorrection true ONLY when the utterance is hard to understand or has a serious error the learner should fix before the conversation continues. Minor slips do not need correction.
- When needsCorrection is true, give a betterExpression the learner can imitate.
- Set shouldEndConversation true when the scene has reached a natural close (objective met, goodbyes exchanged).

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "text": "<your in-character reply>",
  "emotion": "<one word>",
  "feedback": {
    "accuracyScore": <0-100>,
    "suggestions": ["<short hint>"],
    "needsCorrection": <true|false>,
    "betterExpression": "<model rephrasing or empty string>"
  },
  "shouldEndConversation": <true|false>
}`

// annotatePrompt asks for learner-facing annotations of a character line.
const annotatePrompt = `You annotate English sentences for language learners.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "translation": "<natural translation into the learner's language, or a simple English paraphrase>",
  "pronunciation": "<simplified pronunciation guide for the trickiest words>"
}`

// Opening is the character's first line of a scene.
type Opening struct {
	Text    string
	Emotion string
}

// Evaluation is the tutor's response to one user utterance.
type Evaluation struct {
	Text      string
	Emotion   string
	Feedback  Feedback
	ShouldEnd bool
}

// Annotation carries learner-facing notes for a character line.
type Annotation struct {
	Translation   string
	Pronunciation string
}

// Tutor drives the dialogue-generation side of a scene through an
// [llm.Provider]. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: to use a
// specific model, construct the [llm.Provider] with that model configured.
type Tutor struct {
	llm llm.Provider
}

// NewTutor returns a Tutor backed by the given provider.
func NewTutor(provider llm.Provider) *Tutor {
	return &Tutor{llm: provider}
}

// OpeningLine produces the character's first line for the scene.
func (t *Tutor) OpeningLine(ctx context.Context, char character.Character, desc scenario.Descriptor) (*Opening, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(openingPromptTemplate,
			char.Name, char.Style, char.Gender,
			desc.Situation, desc.CharacterRole, desc.UserRole, desc.Objective),
		Temperature: openingTemperature,
		ResponseJSON: true,
		Messages: []llm.Message{
			{Role: "user", Content: "Begin the scene."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: opening line: %w", err)
	}

	var parsed struct {
		Text    string `json:"text"`
		Emotion string `json:"emotion"`
	}
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &parsed); err != nil || parsed.Text == "" {
		// Model ignored the format; salvage the raw text.
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return nil, fmt.Errorf("dialogue: opening line: empty response")
		}
		return &Opening{Text: text, Emotion: "neutral"}, nil
	}
	return &Opening{Text: parsed.Text, Emotion: parsed.Emotion}, nil
}

// Evaluate submits the user's utterance with the trailing turn window and
// returns the character's reply plus feedback.
func (t *Tutor) Evaluate(ctx context.Context, char character.Character, desc scenario.Descriptor, history []Turn, userText string) (*Evaluation, error) {
	msgs := historyMessages(history)
	msgs = append(msgs, llm.Message{Role: "user", Content: userText})

	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(evaluatePromptTemplate,
			char.Name, char.Style, char.Gender,
			desc.Situation, desc.CharacterRole, desc.UserRole, desc.Objective),
		Temperature:  evaluateTemperature,
		ResponseJSON: true,
		Messages:     msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: evaluate turn: %w", err)
	}

	var parsed struct {
		Text     string `json:"text"`
		Emotion  string `json:"emotion"`
		Feedback struct {
			AccuracyScore    int      `json:"accuracyScore"`
			Suggestions      []string `json:"suggestions"`
			NeedsCorrection  bool     `json:"needsCorrection"`
			BetterExpression string   `json:"betterExpression"`
		} `json:"feedback"`
		ShouldEndConversation bool `json:"shouldEndConversation"`
	}
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &parsed); err != nil || parsed.Text == "" {
		// Unparseable response: treat the raw text as the reply with
		// accepting feedback so the conversation keeps moving.
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return nil, fmt.Errorf("dialogue: evaluate turn: empty response")
		}
		return &Evaluation{
			Text:     text,
			Emotion:  "neutral",
			Feedback: Feedback{AccuracyScore: 70},
		}, nil
	}

	return &Evaluation{
		Text:    parsed.Text,
		Emotion: parsed.Emotion,
		Feedback: Feedback{
			AccuracyScore:    clampScore(parsed.Feedback.AccuracyScore),
			Suggestions:      parsed.Feedback.Suggestions,
			NeedsCorrection:  parsed.Feedback.NeedsCorrection,
			BetterExpression: parsed.Feedback.BetterExpression,
		},
		ShouldEnd: parsed.ShouldEndConversation,
	}, nil
}

// Annotate produces learner-facing annotations for a character line.
func (t *Tutor) Annotate(ctx context.Context, text string) (*Annotation, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: annotatePrompt,
		Temperature:  annotateTemperature,
		ResponseJSON: true,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: annotate: %w", err)
	}

	var parsed struct {
		Translation   string `json:"translation"`
		Pronunciation string `json:"pronunciation"`
	}
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("dialogue: annotate: parse response: %w", err)
	}
	return &Annotation{Translation: parsed.Translation, Pronunciation: parsed.Pronunciation}, nil
}

// historyMessages converts prior turns to chat messages. System turns carry
// scene context and are skipped; the system prompt already has it.
func historyMessages(history []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Speaker {
		case SpeakerUser:
			msgs = append(msgs, llm.Message{Role: "user", Content: turn.Text})
		case SpeakerCharacter:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: turn.Text})
		}
	}
	return msgs
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.IndexByte(s, '\n'); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
