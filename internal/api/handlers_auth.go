package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	u, err := s.deps.Auth.Register(c.Request.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		s.writeError(c, err)
		return
	}

	token, err := s.deps.Auth.IssueToken(u.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.setSessionCookie(c, token)
	c.JSON(http.StatusCreated, gin.H{"user": u, "token": token})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	u, token, err := s.deps.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		s.deps.Auth.Logout(token)
	} else if cookie, err := c.Cookie(sessionCookie); err == nil {
		s.deps.Auth.Logout(cookie)
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) handleCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

func (s *Server) handleGoogleRedirect(c *gin.Context) {
	if s.deps.Google == nil {
		notFound(c, "google sign-in is not configured")
		return
	}
	state := uuid.NewString()
	c.SetCookie("talkscene_oauth_state", state, 600, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, s.deps.Google.AuthURL(state))
}

func (s *Server) handleGoogleCallback(c *gin.Context) {
	if s.deps.Google == nil {
		notFound(c, "google sign-in is not configured")
		return
	}

	state, err := c.Cookie("talkscene_oauth_state")
	if err != nil || state == "" || c.Query("state") != state {
		badRequest(c, "oauth state mismatch")
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "missing authorization code")
		return
	}

	u, err := s.deps.Google.HandleCallback(c.Request.Context(), code)
	if err != nil {
		s.writeError(c, err)
		return
	}

	token, err := s.deps.Auth.IssueToken(u.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
}

func (s *Server) setSessionCookie(c *gin.Context, token string) {
	// Seven days in seconds, matching the token TTL default.
	c.SetCookie(sessionCookie, token, 7*24*3600, "/", "", false, true)
}
