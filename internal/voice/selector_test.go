package voice_test

import (
	"testing"

	"github.com/talkscene/talkscene/internal/voice"
)

func TestSelect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		role   string
		gender string
		style  string
		want   string
	}{
		{"role wins over gender and style", "barista", "male", "calm", "shimmer"},
		{"role matched case-insensitively", "Interviewer", "female", "", "onyx"},
		{"gender and style pair", "", "female", "cheerful", "nova"},
		{"male strict", "", "male", "strict", "onyx"},
		{"unknown style falls to gender default", "", "male", "grumpy", "echo"},
		{"female default", "", "female", "", "nova"},
		{"gender alias", "", "f", "", "nova"},
		{"unknown gender is neutral", "", "robot", "", "alloy"},
		{"all empty", "", "", "", "alloy"},
		{"unknown role skips role stage", "astronaut", "female", "calm", "shimmer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := voice.Select(tt.role, tt.gender, tt.style); got != tt.want {
				t.Errorf("Select(%q, %q, %q) = %q, want %q", tt.role, tt.gender, tt.style, got, tt.want)
			}
		})
	}
}
