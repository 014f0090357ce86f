package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talkscene/talkscene/internal/observe"
)

// Routes builds the gin engine with every route and middleware attached.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(jsonMessages())
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "method not allowed"})
	})
	if s.deps.Metrics != nil {
		r.Use(observe.Middleware(s.deps.Metrics, s.log))
	}
	if len(s.deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public account surface.
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)
	api.GET("/google", s.handleGoogleRedirect)
	api.GET("/google/callback", s.handleGoogleCallback)

	authed := api.Group("", s.requireAuth())
	authed.POST("/logout", s.handleLogout)
	authed.GET("/user", s.handleCurrentUser)

	// Usage metering.
	authed.POST("/check-usage", s.handleCheckUsage)
	authed.POST("/increment-usage", s.handleIncrementUsage)

	// Subscriptions.
	authed.POST("/subscribe", s.handleSubscribe)
	authed.POST("/cancel-subscription", s.handleCancelSubscription)

	// Characters.
	authed.GET("/saved-characters", s.handleListCharacters)
	authed.POST("/saved-characters", s.handleGenerateImage)
	authed.GET("/saved-characters/:id", s.handleGetCharacter)
	authed.DELETE("/saved-characters/:id", s.handleDeleteCharacter)
	authed.POST("/saved-characters/:id/use", s.handleUseCharacter)
	authed.POST("/generate-image", s.handleGenerateImage)
	authed.POST("/generate-background-prompt", s.handleBackgroundPrompt)

	// Stateless dialogue helpers.
	authed.POST("/generate-dialogue", s.handleGenerateDialogue)
	authed.POST("/conversation-response", s.handleConversationResponse)
	authed.POST("/tts", s.handleTTS)
	authed.POST("/translate-pronunciation", s.handleTranslatePronunciation)
	authed.POST("/speech-recognition", s.handleSpeechRecognition)

	// Orchestrated sessions.
	authed.POST("/session/start", s.handleSessionStart)
	authed.POST("/session/audio", s.handleSessionAudio)
	authed.POST("/session/reset", s.handleSessionReset)
	authed.POST("/session/end", s.handleSessionEnd)
	authed.GET("/session", s.handleSessionGet)
	authed.GET("/session/export", s.handleSessionExport)
	authed.POST("/session/auto-listen", s.handleSessionAutoListen)

	// Admin.
	admin := authed.Group("/admin", s.requireAdmin())
	admin.GET("/users", s.handleAdminListUsers)
	admin.PUT("/users/:id", s.handleAdminUpdateUser)

	// Websocket turn stream.
	r.GET("/ws/session", s.requireAuth(), s.handleSessionStream)

	return r
}
