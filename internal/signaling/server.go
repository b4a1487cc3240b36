package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/admission"
	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/channel"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/dkeye/intercom/internal/routing"
)

// Config carries the signaling-layer-specific settings of §5/§6.
type Config struct {
	RequestTimeout    time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server is the Signaling Layer. One Server serves every session in the
// process; it owns no transport itself (adapters/ws hands it connections).
type Server struct {
	cfg       Config
	admission *admission.Controller
	channels  *channel.Registry
	clients   *client.Registry
	worker    core.MediaWorker
	router    *routing.Router

	mu       sync.Mutex
	sessions map[core.SessionID]*session
	limiter  *rateLimiter
}

func NewServer(cfg Config, adm *admission.Controller, channels *channel.Registry, clients *client.Registry, worker core.MediaWorker, router *routing.Router) *Server {
	return &Server{
		cfg:       cfg,
		admission: adm,
		channels:  channels,
		clients:   clients,
		worker:    worker,
		router:    router,
		sessions:  make(map[core.SessionID]*session),
		limiter:   newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
	}
}

// SessionCount reports the number of live sessions, for the /metrics
// introspection surface (supplemented feature, see SPEC_FULL.md).
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Accept registers a new transport connection as a session and starts its
// dispatch loop. The caller's adapter is responsible for feeding inbound
// frames to the session (by id) via Server.Inbound and calling
// Server.Disconnect on transport close.
func (s *Server) Accept(id core.SessionID, conn core.SignalConnection) {
	sess := newSession(id, conn, s.limiter)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	go sess.dispatchLoop(s.handleFrame)
}

// Inbound feeds one raw frame from the transport into the session's
// ordered queue.
func (s *Server) Inbound(id core.SessionID, frame []byte) {
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.enqueue(frame)
}

// Disconnect tears down a session and cascades closure of everything it
// owned (§4.8).
func (s *Server) Disconnect(id core.SessionID) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.close()
	s.limiter.forget(id)

	clientID, authenticated := sess.authenticated()
	if !authenticated {
		return
	}
	s.cascadeDisconnect(clientID)
}

func (s *Server) cascadeDisconnect(clientID domain.ClientID) {
	c, err := s.clients.Get(clientID)
	if err != nil {
		return
	}

	if producerID, ok := s.router.OwnerProducer(clientID); ok {
		s.router.CloseProducer(producerID)
	}
	s.worker.CloseSession(core.SessionIDOf(c.SessionToken))

	for _, ch := range append([]domain.ChannelID(nil), c.Channels...) {
		_ = s.channels.RemoveMember(ch, clientID)
		s.router.ReconcileClientLeft(clientID, ch)
		s.broadcastChannel(ch, "clientLeftChannel", clientLeftPayload{ChannelID: ch, ClientID: clientID})
	}

	_ = s.clients.Close(clientID)
}

func (s *Server) handleFrame(sess *session, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		log.Warn().Str("module", "signaling").Str("sid", string(sess.id)).Msg("malformed frame")
		return
	}
	if env.ID == nil {
		log.Warn().Str("module", "signaling").Str("sid", string(sess.id)).Str("event", env.Event).Msg("request without id, ignoring")
		return
	}
	id := *env.ID

	if env.Event != "ping" && !sess.rateLimiter.allow(sess.id) {
		sess.reply(errorResponse(id, apperr.New(apperr.RateLimited, "rate limit exceeded")))
		return
	}

	if err := s.checkAuthState(sess, env.Event); err != nil {
		sess.reply(errorResponse(id, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	result, err := s.dispatchWithDeadline(ctx, sess, env.Event, env.Payload)
	if err != nil {
		sess.reply(errorResponse(id, err))
		return
	}
	sess.reply(okResponse(id, result))
}

// dispatchWithDeadline runs dispatch and races it against ctx's deadline
// (§5: "default 10s handler timeout; on timeout the server answers
// {err, Timeout}"). dispatch keeps running in its goroutine after a timeout
// fires — the reply already sent is the client-visible contract; any side
// effect it eventually produces surfaces through the normal event stream.
func (s *Server) dispatchWithDeadline(ctx context.Context, sess *session, event string, payload json.RawMessage) (interface{}, error) {
	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.dispatch(ctx, sess, event, payload)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, apperr.New(apperr.Timeout, "handler deadline exceeded")
	}
}

// checkAuthState enforces the state machine in §4.5: every request except
// authenticate/adminAuthenticate requires an active session.
func (s *Server) checkAuthState(sess *session, event string) error {
	if event == "authenticate" || event == "adminAuthenticate" {
		return nil
	}
	_, authenticated := sess.authenticated()
	if !authenticated {
		return apperr.New(apperr.Unauthorized, "session is not authenticated")
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, sess *session, event string, payload json.RawMessage) (interface{}, error) {
	switch event {
	case "authenticate":
		return s.handleAuthenticate(sess, payload)
	case "adminAuthenticate":
		return s.handleAdminAuthenticate(sess, payload)
	case "getRtpCapabilities":
		return s.handleGetRtpCapabilities(sess)
	case "createTransport":
		return s.handleCreateTransport(sess, payload)
	case "connectTransport":
		return s.handleConnectTransport(sess, payload)
	case "produce":
		return s.handleProduce(sess, payload)
	case "consume":
		return s.handleConsume(sess, payload)
	case "startSpeaking":
		return s.handleStartSpeaking(sess, payload)
	case "stopSpeaking":
		return s.handleStopSpeaking(sess, payload)
	case "setChannelMute":
		return s.handleSetChannelMute(sess, payload)
	case "setChannelVolume":
		return s.handleSetChannelVolume(sess, payload)
	case "createChannel":
		return s.handleCreateChannel(sess, payload)
	case "updateChannel":
		return s.handleUpdateChannel(sess, payload)
	case "deleteChannel":
		return s.handleDeleteChannel(sess, payload)
	case "authorizePending":
		return s.handleAuthorizePending(sess, payload)
	case "rejectPending":
		return s.handleRejectPending(sess, payload)
	case "ping":
		return struct{}{}, nil
	default:
		return nil, apperr.New(apperr.BadRequest, "unknown request")
	}
}
