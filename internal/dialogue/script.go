package dialogue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/pkg/provider/llm"
)

const (
	scriptTemperature     = 0.7
	backgroundTemperature = 0.6
)

// scriptPromptTemplate asks for a short scripted exchange the learner can
// study before practicing live.
const scriptPromptTemplate = `You write short example dialogues for an English conversation practice app.

Scene: %s
Character: %s, the %s. Learner: the %s.
Audience level: %s.
Learner's objective: %s

Write exactly 3 lines the character might say across the scene, in order, and
exactly 3 focus phrases the learner should practice using. Keep the language
level appropriate for the audience.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "lines": ["<line 1>", "<line 2>", "<line 3>"],
  "focus_phrases": ["<phrase 1>", "<phrase 2>", "<phrase 3>"]
}`

// backgroundPromptTemplate asks for image-generation prompt components for a
// character portrait in a scene.
const backgroundPromptTemplate = `You compose image-generation prompt components for character portraits in an English practice app.

Character: %s, %s, %s personality, playing the %s.
Scene: %s

Describe the portrait setting. Keep each field one short phrase.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "backgroundSetting": "<where the character is>",
  "appropriateOutfit": "<what the character wears>",
  "characterPose": "<how the character stands or sits>",
  "atmosphere": "<lighting and mood>"
}`

// Script is a pre-practice example exchange.
type Script struct {
	Lines        []string `json:"lines"`
	FocusPhrases []string `json:"focus_phrases"`
}

// BackgroundPrompt holds portrait prompt components plus their combined form.
type BackgroundPrompt struct {
	BackgroundSetting string `json:"backgroundSetting"`
	AppropriateOutfit string `json:"appropriateOutfit"`
	CharacterPose     string `json:"characterPose"`
	Atmosphere        string `json:"atmosphere"`
	CombinedPrompt    string `json:"combinedPrompt"`
}

// ScriptedDialogue produces a 3-line example exchange with focus phrases for
// the scene, pitched at the given audience level.
func (t *Tutor) ScriptedDialogue(ctx context.Context, char character.Character, desc scenario.Descriptor, audience string) (*Script, error) {
	if audience == "" {
		audience = "adult learner"
	}
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(scriptPromptTemplate,
			desc.Situation, char.Name, desc.CharacterRole, desc.UserRole, audience, desc.Objective),
		Temperature:  scriptTemperature,
		ResponseJSON: true,
		Messages: []llm.Message{
			{Role: "user", Content: "Write the example dialogue."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: scripted dialogue: %w", err)
	}

	var parsed Script
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("dialogue: scripted dialogue: parse response: %w", err)
	}
	if len(parsed.Lines) == 0 || len(parsed.FocusPhrases) == 0 {
		return nil, fmt.Errorf("dialogue: scripted dialogue: empty response")
	}
	parsed.Lines = padTo(parsed.Lines, 3)
	parsed.FocusPhrases = padTo(parsed.FocusPhrases, 3)
	return &parsed, nil
}

// ComposeBackground produces portrait prompt components for the character in
// the scene and joins them into a single image-generation prompt.
func (t *Tutor) ComposeBackground(ctx context.Context, char character.Character, desc scenario.Descriptor) (*BackgroundPrompt, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(backgroundPromptTemplate,
			char.Name, char.Gender, char.Style, desc.CharacterRole, desc.Situation),
		Temperature:  backgroundTemperature,
		ResponseJSON: true,
		Messages: []llm.Message{
			{Role: "user", Content: "Compose the portrait prompt."},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: compose background: %w", err)
	}

	var parsed BackgroundPrompt
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("dialogue: compose background: parse response: %w", err)
	}
	parsed.CombinedPrompt = fmt.Sprintf("%s, wearing %s, %s, %s",
		parsed.BackgroundSetting, parsed.AppropriateOutfit, parsed.CharacterPose, parsed.Atmosphere)
	return &parsed, nil
}

// padTo trims or repeats the last element so the slice has exactly n entries.
func padTo(s []string, n int) []string {
	if len(s) >= n {
		return s[:n]
	}
	out := make([]string, n)
	copy(out, s)
	for i := len(s); i < n; i++ {
		out[i] = s[len(s)-1]
	}
	return out
}
