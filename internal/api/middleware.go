package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/user"
)

// sessionCookie is the fallback token carrier for browser clients.
const sessionCookie = "talkscene_session"

// userKey is the gin context key the authenticated user is stored under.
const userKey = "api.user"

// requireAuth resolves the session token and stores the account on the
// context. Unauthenticated requests get the uniform 401 body.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				token = cookie
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}

		u, err := s.deps.Auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// requireAdmin gates a route group to admin accounts. Must run after
// requireAuth.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c).Role != user.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "admin access required"})
			return
		}
		c.Next()
	}
}

// currentUser returns the account stored by requireAuth. Only valid on
// routes behind it.
func currentUser(c *gin.Context) *user.User {
	return c.MustGet(userKey).(*user.User)
}

// messageWriter buffers the response body so jsonMessages can rewrite
// plain-text bodies after the handler chain finishes.
type messageWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *messageWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

func (w *messageWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// jsonMessages keeps every /api response JSON. Handlers emit JSON
// themselves; this boxes the plain-text bodies gin produces on its own
// (unmatched routes, method errors) as {"message": ...}. Non-plain content
// types such as the transcript export pass through untouched.
func jsonMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		w := &messageWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter

		ct := w.Header().Get("Content-Type")
		if w.body.Len() == 0 || (ct != "" && !strings.HasPrefix(ct, "text/plain")) {
			w.ResponseWriter.Write(w.body.Bytes())
			return
		}

		data, err := json.Marshal(gin.H{"message": strings.TrimSpace(w.body.String())})
		if err != nil {
			w.ResponseWriter.Write(w.body.Bytes())
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.ResponseWriter.Write(data)
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
