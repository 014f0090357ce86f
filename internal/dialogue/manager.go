package dialogue

import (
	"encoding/base64"
	"strings"
	"sync"
)

// manager tracks the single active session per user.
// All methods are safe for concurrent use.
type manager struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newManager() *manager {
	return &manager{sessions: make(map[string]*session)}
}

// get returns the user's active session, or nil.
func (m *manager) get(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// swap installs a new session for the user and returns the displaced one,
// if any.
func (m *manager) swap(userID string, sess *session) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.sessions[userID]
	m.sessions[userID] = sess
	return old
}

// remove detaches and returns the user's session, or nil.
func (m *manager) remove(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[userID]
	delete(m.sessions, userID)
	return sess
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

// encodeAudioRef packs synthesized MP3 bytes into a data URI the client can
// hand straight to an audio element.
func encodeAudioRef(audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio)
}
