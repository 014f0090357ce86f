package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/scenario"
)

func (s *Server) handleListCharacters(c *gin.Context) {
	chars, err := s.deps.Characters.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

func (s *Server) handleGetCharacter(c *gin.Context) {
	char, err := s.deps.Characters.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if char == nil {
		notFound(c, "character not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": char})
}

func (s *Server) handleDeleteCharacter(c *gin.Context) {
	if err := s.deps.Characters.Delete(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleUseCharacter(c *gin.Context) {
	char, err := s.deps.Characters.MarkUsed(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if char == nil {
		notFound(c, "character not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": char})
}

type generateImageRequest struct {
	Name               string `json:"name" binding:"required"`
	Gender             string `json:"gender" binding:"required"`
	Style              string `json:"style" binding:"required"`
	Audience           string `json:"audience"`
	Scenario           string `json:"scenario"`
	CustomScenarioText string `json:"customScenarioText"`
	BackgroundPrompt   string `json:"backgroundPrompt"`
}

// scenarioHint picks the free-text scenario over the preset key.
func (r generateImageRequest) scenarioHint() string {
	if t := strings.TrimSpace(r.CustomScenarioText); t != "" {
		return t
	}
	return strings.TrimSpace(r.Scenario)
}

func (s *Server) handleGenerateImage(c *gin.Context) {
	var req generateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, gender and style are required")
		return
	}

	char, err := s.deps.Creator.Create(c.Request.Context(), character.CreateRequest{
		OwnerID:          currentUser(c).ID,
		Name:             req.Name,
		Gender:           character.Gender(strings.ToLower(req.Gender)),
		Style:            character.Style(strings.ToLower(req.Style)),
		ScenarioHint:     req.scenarioHint(),
		BackgroundPrompt: req.BackgroundPrompt,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imageUrl":  char.PortraitRef,
		"character": char,
		"message":   "character created",
	})
}

type backgroundPromptRequest struct {
	CustomScenarioText string `json:"customScenarioText" binding:"required"`
	CharacterGender    string `json:"characterGender"`
	CharacterStyle     string `json:"characterStyle"`
	Name               string `json:"name"`
	Scenario           string `json:"scenario"`
}

func (s *Server) handleBackgroundPrompt(c *gin.Context) {
	var req backgroundPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "customScenarioText is required")
		return
	}

	char := character.Character{
		Name:   strings.TrimSpace(req.Name),
		Gender: character.Gender(strings.ToLower(req.CharacterGender)),
		Style:  character.Style(strings.ToLower(req.CharacterStyle)),
	}
	if char.Name == "" {
		char.Name = "the character"
	}
	if !char.Gender.IsValid() {
		char.Gender = character.GenderFemale
	}
	if !char.Style.IsValid() {
		char.Style = character.StyleCheerful
	}
	desc := scenario.Resolve(scenario.Selection{
		PresetKey: req.Scenario,
		FreeText:  req.CustomScenarioText,
	})

	bg, err := s.deps.Tutor.ComposeBackground(c.Request.Context(), char, desc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bg)
}
