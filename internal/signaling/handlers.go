package signaling

import (
	"encoding/json"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/dkeye/intercom/internal/permission"
)

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, apperr.Wrap(apperr.BadRequest, err, "malformed payload")
	}
	return v, nil
}

// --- authenticate / adminAuthenticate ---

type authenticatePayload struct {
	DisplayName  string          `json:"displayName"`
	ServerSecret string          `json:"serverSecret"`
	ClientID     domain.ClientID `json:"clientId,omitempty"`
}

type authenticateResult struct {
	ClientID     domain.ClientID `json:"clientId"`
	SessionToken string          `json:"sessionToken"`
	Status       string          `json:"status"`
	AdminFlag    bool            `json:"adminFlag"`
}

// handleAuthenticate covers both first contact (ClientID empty, enrolled
// pending) and reconnection of a remembered identity (ClientID set,
// rebound and promoted back to active by admission.Authenticate).
func (s *Server) handleAuthenticate(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[authenticatePayload](payload)
	if err != nil {
		return nil, err
	}
	c, err := s.admission.Authenticate(p.ClientID, p.DisplayName, p.ServerSecret, sess.id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.ClientActive {
		sess.setActive(c.ID, c.AdminFlag)
	} else {
		sess.setPending(c.ID)
		s.notifyAdmins(pendingClientPayload{ClientID: c.ID, DisplayName: c.DisplayName})
	}
	return authenticateResult{ClientID: c.ID, SessionToken: string(c.SessionToken), Status: c.Status.String(), AdminFlag: c.AdminFlag}, nil
}

type adminAuthenticatePayload struct {
	DisplayName  string `json:"displayName"`
	ServerSecret string `json:"serverSecret"`
	AdminSecret  string `json:"adminSecret"`
}

func (s *Server) handleAdminAuthenticate(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[adminAuthenticatePayload](payload)
	if err != nil {
		return nil, err
	}
	c, err := s.admission.AdminAuthenticate(p.DisplayName, p.ServerSecret, p.AdminSecret, sess.id)
	if err != nil {
		return nil, err
	}
	sess.setActive(c.ID, true)
	return authenticateResult{ClientID: c.ID, SessionToken: string(c.SessionToken), Status: c.Status.String(), AdminFlag: true}, nil
}

// --- media negotiation ---

func (s *Server) handleGetRtpCapabilities(sess *session) (interface{}, error) {
	return s.worker.RTPCapabilities(), nil
}

type createTransportPayload struct {
	Direction string `json:"direction"`
}

func (s *Server) handleCreateTransport(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[createTransportPayload](payload)
	if err != nil {
		return nil, err
	}
	var dir core.TransportDirection
	switch p.Direction {
	case "send":
		dir = core.TransportSend
	case "receive":
		dir = core.TransportReceive
	default:
		return nil, apperr.New(apperr.BadRequest, "direction must be send or receive")
	}
	return s.worker.CreateTransport(sess.id, dir)
}

type connectTransportPayload struct {
	TransportID domain.TransportID `json:"transportId"`
	SDP         string             `json:"sdp"`
}

func (s *Server) handleConnectTransport(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[connectTransportPayload](payload)
	if err != nil {
		return nil, err
	}
	answer, err := s.worker.ConnectTransport(p.TransportID, p.SDP)
	if err != nil {
		return nil, err
	}
	return struct {
		SDP string `json:"sdp"`
	}{answer}, nil
}

type producePayload struct {
	TransportID domain.TransportID `json:"transportId"`
	ChannelHint domain.ChannelID   `json:"channelHint"`
}

func (s *Server) handleProduce(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[producePayload](payload)
	if err != nil {
		return nil, err
	}
	clientID, _ := sess.authenticated()
	c, err := s.clients.Get(clientID)
	if err != nil {
		return nil, err
	}
	if len(permission.SpeakableChannels(&c)) == 0 {
		return nil, apperr.New(apperr.PermissionDenied, "no channel grants speak right")
	}

	producerID, err := s.worker.Produce(p.TransportID, core.ProducerAppData{ChannelHint: p.ChannelHint})
	if err != nil {
		return nil, err
	}
	if err := s.router.OnProducerOpened(clientID, producerID); err != nil {
		return nil, err
	}
	return struct {
		ProducerID domain.ProducerID `json:"producerId"`
	}{producerID}, nil
}

type consumePayload struct {
	TransportID domain.TransportID `json:"transportId"`
	ProducerID  domain.ProducerID  `json:"producerId"`
}

func (s *Server) handleConsume(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[consumePayload](payload)
	if err != nil {
		return nil, err
	}
	if !s.worker.CanConsume(p.ProducerID) {
		return nil, apperr.New(apperr.UnsupportedCodec, "producer unavailable")
	}

	result, err := s.worker.Consume(p.TransportID, p.ProducerID, false)
	if err != nil {
		return nil, err
	}

	clientID, _ := sess.authenticated()
	s.router.ConsumerCreated(clientID, p.ProducerID, result.ConsumerID)

	return struct {
		ConsumerID domain.ConsumerID `json:"consumerId"`
		SDP        string            `json:"sdp"`
		Paused     bool              `json:"paused"`
	}{result.ConsumerID, result.OfferSDP, result.Paused}, nil
}

// --- speaking hints (advisory only) ---

type channelIDPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

func (s *Server) handleStartSpeaking(sess *session, payload json.RawMessage) (interface{}, error) {
	if _, err := decode[channelIDPayload](payload); err != nil {
		return nil, err
	}
	// Advisory only (§4.5): the active-speaker observer is the source of
	// truth, this request does not itself change routing state.
	return struct{}{}, nil
}

func (s *Server) handleStopSpeaking(sess *session, payload json.RawMessage) (interface{}, error) {
	if _, err := decode[channelIDPayload](payload); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// --- user-side channel settings ---

type setChannelMutePayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Muted     bool             `json:"muted"`
}

func (s *Server) handleSetChannelMute(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[setChannelMutePayload](payload)
	if err != nil {
		return nil, err
	}
	clientID, _ := sess.authenticated()
	if err := s.clients.SetChannelMute(clientID, p.ChannelID, p.Muted); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

type setChannelVolumePayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
	Volume    float64          `json:"volume"`
}

func (s *Server) handleSetChannelVolume(sess *session, payload json.RawMessage) (interface{}, error) {
	p, err := decode[setChannelVolumePayload](payload)
	if err != nil {
		return nil, err
	}
	clientID, _ := sess.authenticated()
	if err := s.clients.SetChannelVolume(clientID, p.ChannelID, p.Volume); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// --- admin: channel CRUD ---

func (s *Server) requireAdmin(sess *session) error {
	if !sess.isAdmin() {
		return apperr.New(apperr.PermissionDenied, "admin only")
	}
	return nil
}

type createChannelPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateChannel(sess *session, payload json.RawMessage) (interface{}, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	p, err := decode[createChannelPayload](payload)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, apperr.New(apperr.BadRequest, "name is required")
	}
	ch, err := s.channels.Create(p.Name, p.Description)
	if err != nil {
		return nil, err
	}
	s.broadcastAll("channelCreated", ch)
	return ch, nil
}

type updateChannelPayload struct {
	ChannelID   domain.ChannelID `json:"channelId"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
}

func (s *Server) handleUpdateChannel(sess *session, payload json.RawMessage) (interface{}, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	p, err := decode[updateChannelPayload](payload)
	if err != nil {
		return nil, err
	}
	ch, err := s.channels.UpdateMetadata(p.ChannelID, p.Name, p.Description)
	if err != nil {
		return nil, err
	}
	s.broadcastAll("channelUpdated", ch)
	return ch, nil
}

type channelIDOnlyPayload struct {
	ChannelID domain.ChannelID `json:"channelId"`
}

func (s *Server) handleDeleteChannel(sess *session, payload json.RawMessage) (interface{}, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	p, err := decode[channelIDOnlyPayload](payload)
	if err != nil {
		return nil, err
	}

	// Destroying a channel first closes its producers and severs every
	// member's association (§3), so neither a dangling client.Channels
	// entry nor a routing.Router reference to the now-gone id survives it.
	producers, err := s.channels.Producers(p.ChannelID)
	if err != nil {
		return nil, err
	}
	members, err := s.channels.Members(p.ChannelID)
	if err != nil {
		return nil, err
	}
	for _, producerID := range producers {
		s.router.CloseProducer(producerID)
	}
	for _, clientID := range members {
		_ = s.channels.RemoveMember(p.ChannelID, clientID)
		_, _ = s.clients.RemoveFromChannel(clientID, p.ChannelID)
		s.broadcastChannel(p.ChannelID, "clientLeftChannel", clientLeftPayload{ChannelID: p.ChannelID, ClientID: clientID})
	}

	if err := s.channels.Delete(p.ChannelID); err != nil {
		return nil, err
	}
	s.broadcastAll("channelDeleted", p)
	return struct{}{}, nil
}

// --- admin: pending queue ---

type authorizePendingPayload struct {
	ClientID    domain.ClientID         `json:"clientId"`
	Channels    []domain.ChannelID      `json:"channels"`
	Permissions domain.PermissionMatrix `json:"permissions"`
}

func (s *Server) handleAuthorizePending(sess *session, payload json.RawMessage) (interface{}, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	p, err := decode[authorizePendingPayload](payload)
	if err != nil {
		return nil, err
	}

	c, err := s.clients.Authorize(p.ClientID, p.Channels, p.Permissions)
	if err != nil {
		return nil, err
	}
	for _, ch := range p.Channels {
		if err := s.channels.AddMember(ch, c.ID); err != nil {
			continue
		}
		s.router.ReconcileClientJoined(c.ID, ch)
		s.broadcastChannel(ch, "clientJoinedChannel", clientJoinedPayload{ChannelID: ch, ClientID: c.ID})
	}

	s.notifyClient(c.ID, "authorized", c.DTO())
	return struct{}{}, nil
}

type rejectPendingPayload struct {
	ClientID domain.ClientID `json:"clientId"`
}

func (s *Server) handleRejectPending(sess *session, payload json.RawMessage) (interface{}, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}
	p, err := decode[rejectPendingPayload](payload)
	if err != nil {
		return nil, err
	}
	if err := s.clients.Reject(p.ClientID); err != nil {
		return nil, err
	}
	s.notifyClient(p.ClientID, "rejected", struct{}{})
	return struct{}{}, nil
}
