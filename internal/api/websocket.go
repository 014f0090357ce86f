package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/talkscene/talkscene/internal/dialogue"
)

// handleSessionStream upgrades to a websocket and forwards the session's
// turn events until the client disconnects or the scene ends. The stream is
// one-way; clients submit audio over the REST surface.
func (s *Server) handleSessionStream(c *gin.Context) {
	uid := currentUser(c).ID
	events, cancel, err := s.deps.Orchestrator.Subscribe(uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.deps.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "user_id", uid, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := c.Request.Context()

	// Replay the current snapshot so a reconnecting client catches up before
	// live events flow.
	snap, err := s.deps.Orchestrator.Session(uid)
	if err == nil {
		if werr := writeEvent(ctx, conn, streamMessage{Type: "snapshot", Session: &snap}); werr != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "client gone")
			return
		case ev, ok := <-events:
			if !ok {
				// Scene ended; close cleanly.
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			if err := writeEvent(ctx, conn, streamMessage{Type: "event", Event: &ev}); err != nil {
				if !errors.Is(err, ctx.Err()) {
					s.log.Debug("websocket write failed", "user_id", uid, "error", err)
				}
				return
			}
		}
	}
}

// streamMessage is the wire envelope for the turn stream.
type streamMessage struct {
	Type    string             `json:"type"`
	Session *dialogue.Snapshot `json:"session,omitempty"`
	Event   *dialogue.Event    `json:"event,omitempty"`
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
