package signaling

import (
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

type pendingClientPayload struct {
	ClientID    domain.ClientID `json:"clientId"`
	DisplayName string          `json:"displayName"`
}

type clientJoinedPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	ClientID  domain.ClientID  `json:"clientId"`
}

type clientLeftPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	ClientID  domain.ClientID  `json:"clientId"`
}

type producerOpenedPayload struct {
	ChannelID  domain.ChannelID  `json:"channelId"`
	ProducerID domain.ProducerID `json:"producerId"`
	OwnerID    domain.ClientID   `json:"ownerId"`
}

type producerClosedPayload struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type speakingPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	ClientID  domain.ClientID  `json:"clientId"`
}

// sessionOf returns the live session bound to a client id, if any. A
// client with no live session (e.g. between reconnects) simply misses
// the event, matching the "fire-and-forget" contract of §4.5.
func (s *Server) sessionOf(clientID domain.ClientID) *session {
	c, err := s.clients.Get(clientID)
	if err != nil || c.SessionToken == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[core.SessionIDOf(c.SessionToken)]
}

func (s *Server) notifyClient(clientID domain.ClientID, event string, payload interface{}) {
	if sess := s.sessionOf(clientID); sess != nil {
		sess.send(event, payload)
	}
}

func (s *Server) notifyAdmins(payload pendingClientPayload) {
	s.mu.Lock()
	admins := make([]*session, 0)
	for _, sess := range s.sessions {
		if sess.isAdmin() {
			admins = append(admins, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range admins {
		sess.send("pendingClient", payload)
	}
}

// broadcastChannel fans an event out to every member of ch (§4.5: "a
// client receives an event for channel C only if it is a member of C").
// Listen-right gating is applied by callers where the event is
// listen-specific (speaking notifications); membership alone gates
// membership/channel-lifecycle events.
func (s *Server) broadcastChannel(ch domain.ChannelID, event string, payload interface{}) {
	members, err := s.channels.Members(ch)
	if err != nil {
		return
	}
	for _, clientID := range members {
		s.notifyClient(clientID, event, payload)
	}
}

// broadcastAll fans an event out to every active session, used for
// channel-registry-wide events like channelCreated that are not scoped to
// one channel's membership.
func (s *Server) broadcastAll(event string, payload interface{}) {
	s.mu.Lock()
	active := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if _, ok := sess.authenticated(); ok {
			active = append(active, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range active {
		sess.send(event, payload)
	}
}

// routing.Sink implementation.

func (s *Server) ProducerOpened(subscriber domain.ClientID, channelID domain.ChannelID, producerID domain.ProducerID, owner domain.ClientID) {
	s.notifyClient(subscriber, "producerOpened", producerOpenedPayload{ChannelID: channelID, ProducerID: producerID, OwnerID: owner})
}

func (s *Server) ProducerClosed(subscriber domain.ClientID, producerID domain.ProducerID) {
	s.notifyClient(subscriber, "producerClosed", producerClosedPayload{ProducerID: producerID})
}

func (s *Server) ClientSpeaking(channelID domain.ChannelID, clientID domain.ClientID) {
	s.broadcastListeners(channelID, "clientSpeaking", speakingPayload{ChannelID: channelID, ClientID: clientID})
}

func (s *Server) ClientStoppedSpeaking(channelID domain.ChannelID, clientID domain.ClientID) {
	s.broadcastListeners(channelID, "clientStoppedSpeaking", speakingPayload{ChannelID: channelID, ClientID: clientID})
}

// broadcastListeners fans out to channel members who additionally hold
// listen right there (§4.5: "a client receives clientSpeaking for channel
// C only if it is a member of C and has listen in C").
func (s *Server) broadcastListeners(ch domain.ChannelID, event string, payload interface{}) {
	members, err := s.channels.Members(ch)
	if err != nil {
		return
	}
	for _, clientID := range members {
		c, err := s.clients.Get(clientID)
		if err != nil {
			continue
		}
		if c.Permissions.ListenToAll || c.Permissions.ListenTo[ch] {
			s.notifyClient(clientID, event, payload)
		}
	}
}
