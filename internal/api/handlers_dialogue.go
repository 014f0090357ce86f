package api

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/voice"
	"github.com/talkscene/talkscene/pkg/provider/stt"
	"github.com/talkscene/talkscene/pkg/provider/tts"
)

// characterPayload references a character either by saved id or inline.
type characterPayload struct {
	ID     string `json:"characterId"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Style  string `json:"style"`
}

// resolveCharacter loads the saved record or builds an ad hoc character from
// the inline fields. Returns (nil, false) after writing the response when the
// reference is unusable.
func (s *Server) resolveCharacter(c *gin.Context, p characterPayload) (*character.Character, bool) {
	if p.ID != "" {
		char, err := s.deps.Characters.Get(c.Request.Context(), currentUser(c).ID, p.ID)
		if err != nil {
			s.writeError(c, err)
			return nil, false
		}
		if char == nil {
			notFound(c, "character not found")
			return nil, false
		}
		return char, true
	}

	char := &character.Character{
		Name:   strings.TrimSpace(p.Name),
		Gender: character.Gender(strings.ToLower(p.Gender)),
		Style:  character.Style(strings.ToLower(p.Style)),
	}
	if char.Name == "" {
		char.Name = "Tutor"
	}
	if !char.Gender.IsValid() {
		char.Gender = character.GenderFemale
	}
	if !char.Style.IsValid() {
		char.Style = character.StyleCheerful
	}
	return char, true
}

// checkAndCharge gates the handler on the metric quota. Returns false after
// writing the response when denied. Charge with chargeUsage after the
// upstream call succeeded.
func (s *Server) checkAndCharge(c *gin.Context, metric usage.Metric) bool {
	q, err := s.deps.Ledger.CheckQuota(c.Request.Context(), currentUser(c).ID, metric)
	if err != nil {
		s.writeError(c, err)
		return false
	}
	if !q.Allowed {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordQuotaDenial(c.Request.Context(), string(metric))
		}
		s.writeError(c, &usage.QuotaError{Metric: metric, Quota: q})
		return false
	}
	return true
}

func (s *Server) chargeUsage(c *gin.Context, metric usage.Metric) {
	if err := s.deps.Ledger.Increment(c.Request.Context(), currentUser(c).ID, metric); err != nil {
		s.log.Error("usage increment failed", "user_id", currentUser(c).ID, "metric", metric, "error", err)
	}
}

type generateDialogueRequest struct {
	Character characterPayload `json:"character"`
	Scenario  string           `json:"scenario"`
	FreeText  string           `json:"customScenarioText"`
	Audience  string           `json:"audience"`
}

func (s *Server) handleGenerateDialogue(c *gin.Context) {
	var req generateDialogueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	char, ok := s.resolveCharacter(c, req.Character)
	if !ok {
		return
	}
	if !s.checkAndCharge(c, usage.MetricConversation) {
		return
	}

	desc := scenario.Resolve(scenario.Selection{PresetKey: req.Scenario, FreeText: req.FreeText})
	script, err := s.deps.Tutor.ScriptedDialogue(c.Request.Context(), *char, desc, req.Audience)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.chargeUsage(c, usage.MetricConversation)
	c.JSON(http.StatusOK, script)
}

type historyEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type conversationRequest struct {
	UserInput string           `json:"userInput" binding:"required"`
	History   []historyEntry   `json:"conversationHistory"`
	Character characterPayload `json:"character"`
	Topic     string           `json:"topic"`
}

// handleConversationResponse is the stateless turn endpoint: the client
// carries its own history. The orchestrated session surface supersedes it
// but legacy clients still use it.
func (s *Server) handleConversationResponse(c *gin.Context) {
	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userInput is required")
		return
	}
	char, ok := s.resolveCharacter(c, req.Character)
	if !ok {
		return
	}
	if !s.checkAndCharge(c, usage.MetricConversation) {
		return
	}

	desc := scenario.Resolve(scenario.Selection{FreeText: req.Topic})
	history := make([]dialogue.Turn, 0, len(req.History))
	for _, h := range req.History {
		history = append(history, dialogue.Turn{Speaker: dialogue.Speaker(h.Speaker), Text: h.Text})
	}

	eval, err := s.deps.Tutor.Evaluate(c.Request.Context(), *char, desc, history, req.UserInput)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.chargeUsage(c, usage.MetricConversation)

	c.JSON(http.StatusOK, gin.H{
		"response":              eval.Text,
		"emotion":               eval.Emotion,
		"feedback":              eval.Feedback,
		"shouldEndConversation": eval.ShouldEnd,
	})
}

type ttsRequest struct {
	Text      string           `json:"text" binding:"required"`
	Character characterPayload `json:"character"`
}

func (s *Server) handleTTS(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text is required")
		return
	}
	char, ok := s.resolveCharacter(c, req.Character)
	if !ok {
		return
	}
	if !s.checkAndCharge(c, usage.MetricTTS) {
		return
	}

	voiceID := voice.Select("", string(char.Gender), string(char.Style))
	audio, err := s.deps.TTS.Synthesize(c.Request.Context(), tts.Request{Text: req.Text, VoiceID: voiceID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.chargeUsage(c, usage.MetricTTS)

	c.JSON(http.StatusOK, gin.H{
		"audioUrl": "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio),
	})
}

type translateRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleTranslatePronunciation(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "text is required")
		return
	}

	ann, err := s.deps.Tutor.Annotate(c.Request.Context(), req.Text)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"koreanTranslation": ann.Translation,
		"pronunciation":     ann.Pronunciation,
	})
}

type speechRecognitionRequest struct {
	AudioBlob string `json:"audioBlob" binding:"required"`
	Format    string `json:"format"`
	Language  string `json:"language"`
}

func (s *Server) handleSpeechRecognition(c *gin.Context) {
	var req speechRecognitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "audioBlob is required")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioBlob)
	if err != nil {
		badRequest(c, "audioBlob must be base64 encoded")
		return
	}

	format := stt.AudioFormat(req.Format)
	if format == "" {
		format = stt.FormatWebM
	}
	transcript, err := s.deps.STT.Transcribe(c.Request.Context(), stt.Request{
		Audio:    audio,
		Format:   format,
		Language: req.Language,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"text":       transcript.Text,
		"confidence": transcript.Confidence,
	})
}
