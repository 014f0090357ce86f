package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/export"
	"github.com/talkscene/talkscene/internal/scenario"
	"github.com/talkscene/talkscene/pkg/provider/stt"
)

type sessionStartRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
	PresetKey   string `json:"presetKey"`
	FreeText    string `json:"freeText"`
}

func (s *Server) handleSessionStart(c *gin.Context) {
	var req sessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "characterId is required")
		return
	}

	uid := currentUser(c).ID
	char, err := s.deps.Characters.MarkUsed(c.Request.Context(), uid, req.CharacterID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if char == nil {
		notFound(c, "character not found")
		return
	}

	desc := scenario.Resolve(scenario.Selection{PresetKey: req.PresetKey, FreeText: req.FreeText})
	snap, err := s.deps.Orchestrator.StartScene(c.Request.Context(), uid, *char, desc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

type sessionAudioRequest struct {
	AudioBlob string `json:"audioBlob" binding:"required"`
	Format    string `json:"format"`
}

func (s *Server) handleSessionAudio(c *gin.Context) {
	var req sessionAudioRequest
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

	res, err := s.deps.Orchestrator.SubmitAudio(c.Request.Context(), currentUser(c).ID, audio, format)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSessionReset(c *gin.Context) {
	snap, err := s.deps.Orchestrator.Reset(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (s *Server) handleSessionEnd(c *gin.Context) {
	s.deps.Orchestrator.EndScene(currentUser(c).ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSessionGet(c *gin.Context) {
	snap, err := s.deps.Orchestrator.Session(currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

func (s *Server) handleSessionExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		badRequest(c, "format must be markdown or json")
		return
	}

	snap, err := s.deps.Orchestrator.Session(currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := export.Transcript(snap, format)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), out)
}

type autoListenRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) handleSessionAutoListen(c *gin.Context) {
	var req autoListenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enabled is required")
		return
	}

	snap, err := s.deps.Orchestrator.SetAutoListen(currentUser(c).ID, *req.Enabled)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}
