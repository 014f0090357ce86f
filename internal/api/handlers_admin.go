package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/user"
)

func (s *Server) handleAdminListUsers(c *gin.Context) {
	users, err := s.deps.Users.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type adminUpdateUserRequest struct {
	Role string `json:"role"`
	Tier string `json:"tier"`
}

func (s *Server) handleAdminUpdateUser(c *gin.Context) {
	var req adminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := s.deps.Users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if u == nil {
		notFound(c, "user not found")
		return
	}

	if req.Role != "" {
		role := user.Role(req.Role)
		if !role.IsValid() {
			badRequest(c, "unknown role")
			return
		}
		u.Role = role
	}
	if req.Tier != "" {
		tier := user.Tier(req.Tier)
		if !tier.IsValid() {
			badRequest(c, "unknown tier")
			return
		}
		u.Tier = tier
	}

	if err := s.deps.Users.Update(c.Request.Context(), u); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
