package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/auth"
	"github.com/talkscene/talkscene/internal/dialogue"
	"github.com/talkscene/talkscene/internal/payment"
	"github.com/talkscene/talkscene/internal/usage"
)

// quotaType maps a metric to the client-facing 429 discriminator.
var quotaType = map[usage.Metric]string{
	usage.MetricConversation: "conversation_limit_exceeded",
	usage.MetricImage:        "image_limit_exceeded",
	usage.MetricTTS:          "tts_limit_exceeded",
}

// writeError translates a collaborator error onto the HTTP taxonomy. Nothing
// crosses the HTTP boundary unformatted.
func (s *Server) writeError(c *gin.Context, err error) {
	var quotaErr *usage.QuotaError
	var busyErr *dialogue.ErrBusy

	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"currentUsage": quotaErr.Quota.Current,
			"limit":        quotaErr.Quota.Limit,
			"type":         quotaType[quotaErr.Metric],
		})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication required", "error": err.Error()})
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, payment.ErrInvalidTier), errors.Is(err, payment.ErrNotSubscribed):
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request", "error": err.Error()})
	case errors.Is(err, dialogue.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"message": "no active session", "error": err.Error()})
	case errors.As(err, &busyErr):
		c.JSON(http.StatusConflict, gin.H{"message": "a turn is already processing", "error": err.Error()})
	case errors.Is(err, payment.ErrNoProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "payments are not configured", "error": err.Error()})
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again", "error": err.Error()})
	}
}

// badRequest reports a client-side validation failure.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

// notFound reports a missing resource.
func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"message": msg})
}
