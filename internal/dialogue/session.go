package dialogue

import (
	"sync"
	"time"

	"github.com/talkscene/talkscene/internal/character"
	"github.com/talkscene/talkscene/internal/scenario"
)

// Progress constants for a scene.
const (
	// progressStart is the progress value after a successful scene start.
	progressStart = 10
	// progressStep is added per accepted user turn.
	progressStep = 15
	// progressMax caps the progress value.
	progressMax = 100
)

// EventType classifies a session event.
type EventType string

const (
	// EventTurn announces an appended turn.
	EventTurn EventType = "turn"
	// EventState announces a state change.
	EventState EventType = "state"
	// EventNotice announces a recoverable user-facing condition, e.g. an
	// empty transcription.
	EventNotice EventType = "notice"
)

// Event is a session change pushed to stream subscribers.
type Event struct {
	Type     EventType `json:"type"`
	State    State     `json:"state,omitempty"`
	Progress int       `json:"progress,omitempty"`
	Turn     *Turn     `json:"turn,omitempty"`
	Notice   string    `json:"notice,omitempty"`
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	ID            string              `json:"id"`
	Character     character.Character `json:"character"`
	Scenario      scenario.Descriptor `json:"scenario"`
	State         State               `json:"state"`
	AwaitingRetry bool                `json:"awaitingRetry"`
	AutoListen    bool                `json:"autoListen"`
	Turns         []Turn              `json:"turns"`
	Progress      int                 `json:"progress"`
	StartedAt     time.Time           `json:"startedAt"`
}

// Session holds one user's active scene. All mutation goes through the
// orchestrator; the struct only guards its own invariants.
type session struct {
	mu sync.Mutex

	id      string
	userID  string
	char    character.Character
	desc    scenario.Descriptor
	voiceID string

	state         State
	awaitingRetry bool
	autoListen    bool
	turns         []Turn
	progress      int
	startedAt     time.Time

	relisten *time.Timer

	subs map[chan Event]struct{}
}

func newSession(id, userID string, char character.Character, desc scenario.Descriptor, voiceID string) *session {
	// Hands-free relistening is opt-in via SetAutoListen.
	return &session{
		id:        id,
		userID:    userID,
		char:      char,
		desc:      desc,
		voiceID:   voiceID,
		state:     StateAwaitingStart,
		startedAt: time.Now().UTC(),
		subs:      make(map[chan Event]struct{}),
	}
}

// snapshot copies the observable state under the lock.
func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return Snapshot{
		ID:            s.id,
		Character:     s.char,
		Scenario:      s.desc,
		State:         s.state,
		AwaitingRetry: s.awaitingRetry,
		AutoListen:    s.autoListen,
		Turns:         turns,
		Progress:      s.progress,
		StartedAt:     s.startedAt,
	}
}

// appendTurn appends under the lock and notifies subscribers.
func (s *session) appendTurn(t Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
	s.publish(Event{Type: EventTurn, Turn: &t})
}

// setState transitions the lifecycle state and notifies subscribers.
func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	progress := s.progress
	s.mu.Unlock()
	s.publish(Event{Type: EventState, State: st, Progress: progress})
}

// lastTurns returns a copy of the trailing n turns.
func (s *session) lastTurns(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// stopRelisten cancels a pending microphone reopen, if any.
func (s *session) stopRelisten() {
	s.mu.Lock()
	if s.relisten != nil {
		s.relisten.Stop()
		s.relisten = nil
	}
	s.mu.Unlock()
}

// Subscribe registers a stream consumer. The returned cancel function must
// be called to release the subscription. Slow consumers drop events rather
// than blocking the turn loop.
func (s *session) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *session) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeSubs closes all subscriber channels, ending their streams.
func (s *session) closeSubs() {
	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}
