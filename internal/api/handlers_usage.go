package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/payment"
	"github.com/talkscene/talkscene/internal/usage"
	"github.com/talkscene/talkscene/internal/user"
)

type metricRequest struct {
	Metric string `json:"metric" binding:"required"`
}

func (s *Server) handleCheckUsage(c *gin.Context) {
	var req metricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "metric is required")
		return
	}
	metric := usage.Metric(req.Metric)
	if !metric.IsValid() {
		badRequest(c, "unknown metric")
		return
	}

	q, err := s.deps.Ledger.CheckQuota(c.Request.Context(), currentUser(c).ID, metric)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !q.Allowed && s.deps.Metrics != nil {
		s.deps.Metrics.RecordQuotaDenial(c.Request.Context(), string(metric))
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) handleIncrementUsage(c *gin.Context) {
	var req metricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "metric is required")
		return
	}
	metric := usage.Metric(req.Metric)
	if !metric.IsValid() {
		badRequest(c, "unknown metric")
		return
	}

	uid := currentUser(c).ID
	if err := s.deps.Ledger.Increment(c.Request.Context(), uid, metric); err != nil {
		s.writeError(c, err)
		return
	}
	q, err := s.deps.Ledger.CheckQuota(c.Request.Context(), uid, metric)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "newUsage": q.Current})
}

type subscribeRequest struct {
	Tier     string `json:"tier" binding:"required"`
	Provider string `json:"provider"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	if s.deps.Payments == nil {
		s.writeError(c, payment.ErrNoProvider)
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tier is required")
		return
	}

	u := currentUser(c)
	sub, err := s.deps.Payments.Subscribe(c.Request.Context(), u, user.Tier(req.Tier), req.Provider)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u, "paymentData": sub})
}

func (s *Server) handleCancelSubscription(c *gin.Context) {
	if s.deps.Payments == nil {
		s.writeError(c, payment.ErrNoProvider)
		return
	}

	u := currentUser(c)
	if err := s.deps.Payments.Cancel(c.Request.Context(), u); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}
