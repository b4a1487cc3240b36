package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

// authState is the per-session state machine of §4.5.
type authState int

const (
	stateNew authState = iota
	statePending
	stateActive
	stateClosed
)

// session tracks one live signaling connection. Inbound frames are
// processed one at a time, in arrival order, by a single goroutine owned
// by the session (§5: "one logical task per session handling its message
// queue in order").
type session struct {
	id   core.SessionID
	conn core.SignalConnection

	mu        sync.Mutex
	state     authState
	clientID  domain.ClientID
	adminFlag bool

	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	rateLimiter *rateLimiter
}

func newSession(id core.SessionID, conn core.SignalConnection, limiter *rateLimiter) *session {
	return &session{
		id:          id,
		conn:        conn,
		state:       stateNew,
		inbox:       make(chan []byte, 64),
		closed:      make(chan struct{}),
		rateLimiter: limiter,
	}
}

func (s *session) authenticated() (domain.ClientID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID, s.state == stateActive
}

func (s *session) setActive(clientID domain.ClientID, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateActive
	s.clientID = clientID
	s.adminFlag = admin
}

func (s *session) setPending(clientID domain.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = statePending
	s.clientID = clientID
}

func (s *session) isAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminFlag
}

func (s *session) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		close(s.closed)
		s.conn.Close()
	})
}

func (s *session) send(event string, payload interface{}) {
	s.writeFrame(wireEvent{Event: event, Payload: payload})
}

func (s *session) reply(r response) {
	s.writeFrame(r)
}

func (s *session) writeFrame(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signaling").Msg("marshal frame")
		return
	}
	if err := s.conn.TrySend(core.Frame(b)); err != nil {
		log.Warn().Err(err).Str("module", "signaling").Str("sid", string(s.id)).Msg("send failed, closing session")
		s.close()
	}
}

// dispatchLoop drains s.inbox in order until the session is closed. It is
// the single point where per-session request ordering (§5) is enforced.
func (s *session) dispatchLoop(handle func(s *session, frame []byte)) {
	for {
		select {
		case <-s.closed:
			return
		case frame, ok := <-s.inbox:
			if !ok {
				return
			}
			handle(s, frame)
		}
	}
}

func (s *session) enqueue(frame []byte) {
	select {
	case s.inbox <- frame:
	case <-s.closed:
	case <-time.After(time.Second):
		log.Warn().Str("module", "signaling").Str("sid", string(s.id)).Msg("inbox full, dropping frame")
	}
}
