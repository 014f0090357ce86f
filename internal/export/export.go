// Package export renders a practice session transcript for download.
//
// Two formats are supported: Markdown for human reading and JSON for
// programmatic use. Both carry the speaker-labelled turns, per-turn feedback,
// and the progress summary.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/talkscene/talkscene/internal/dialogue"
)

// Format selects the transcript rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ErrUnknownFormat is returned for a format outside the supported set.
var ErrUnknownFormat = fmt.Errorf("export: unknown format")

// ParseFormat maps a query-string value to a Format. Empty defaults to
// Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Transcript renders the session snapshot in the requested format.
func Transcript(snap dialogue.Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return renderMarkdown(snap), nil
	case FormatJSON:
		return renderJSON(snap)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// jsonTranscript is the stable JSON export shape. It deliberately omits
// audio references; exported transcripts are text artifacts.
type jsonTranscript struct {
	SessionID string     `json:"sessionId"`
	Character string     `json:"character"`
	Scenario  string     `json:"scenario"`
	Objective string     `json:"objective"`
	StartedAt time.Time  `json:"startedAt"`
	Progress  int        `json:"progress"`
	Turns     []jsonTurn `json:"turns"`
}

type jsonTurn struct {
	Speaker            string             `json:"speaker"`
	Text               string             `json:"text"`
	Emotion            string             `json:"emotion,omitempty"`
	Translation        string             `json:"translation,omitempty"`
	PronunciationGuide string             `json:"pronunciationGuide,omitempty"`
	Feedback           *dialogue.Feedback `json:"feedback,omitempty"`
}

func renderJSON(snap dialogue.Snapshot) ([]byte, error) {
	out := jsonTranscript{
		SessionID: snap.ID,
		Character: snap.Character.Name,
		Scenario:  snap.Scenario.Situation,
		Objective: snap.Scenario.Objective,
		StartedAt: snap.StartedAt,
		Progress:  snap.Progress,
		Turns:     make([]jsonTurn, 0, len(snap.Turns)),
	}
	for _, t := range snap.Turns {
		out.Turns = append(out.Turns, jsonTurn{
			Speaker:            string(t.Speaker),
			Text:               t.Text,
			Emotion:            t.Emotion,
			Translation:        t.Translation,
			PronunciationGuide: t.PronunciationGuide,
			Feedback:           t.Feedback,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal transcript: %w", err)
	}
	return data, nil
}

func renderMarkdown(snap dialogue.Snapshot) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Practice session with %s\n\n", snap.Character.Name)
	fmt.Fprintf(&b, "- Scene: %s\n", snap.Scenario.Situation)
	fmt.Fprintf(&b, "- Objective: %s\n", snap.Scenario.Objective)
	fmt.Fprintf(&b, "- Started: %s\n", snap.StartedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "- Progress: %d%%\n\n", snap.Progress)

	for _, t := range snap.Turns {
		switch t.Speaker {
		case dialogue.SpeakerSystem:
			fmt.Fprintf(&b, "> %s\n\n", t.Text)
		case dialogue.SpeakerCharacter:
			fmt.Fprintf(&b, "**%s:** %s\n\n", snap.Character.Name, t.Text)
			if t.Translation != "" && t.Translation != dialogue.AnnotationPlaceholder {
				fmt.Fprintf(&b, "  - Translation: %s\n", t.Translation)
			}
			if t.PronunciationGuide != "" && t.PronunciationGuide != dialogue.AnnotationPlaceholder {
				fmt.Fprintf(&b, "  - Pronunciation: %s\n", t.PronunciationGuide)
			}
			if t.Translation != "" || t.PronunciationGuide != "" {
				b.WriteString("\n")
			}
		case dialogue.SpeakerUser:
			fmt.Fprintf(&b, "**You:** %s\n\n", t.Text)
			if fb := t.Feedback; fb != nil {
				fmt.Fprintf(&b, "  - Accuracy: %d\n", fb.AccuracyScore)
				if fb.BetterExpression != "" {
					fmt.Fprintf(&b, "  - Better: %s\n", fb.BetterExpression)
				}
				for _, s := range fb.Suggestions {
					fmt.Fprintf(&b, "  - Hint: %s\n", s)
				}
				b.WriteString("\n")
			}
		}
	}

	return []byte(b.String())
}
