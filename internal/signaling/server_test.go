package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/intercom/internal/admission"
	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/channel"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/dkeye/intercom/internal/mediamock"
	"github.com/dkeye/intercom/internal/routing"
)

// fakeConn is an in-memory core.SignalConnection that records every frame
// written to it, so a test can inspect responses without a real socket.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) last() response {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r response
	_ = json.Unmarshal(f.frames[len(f.frames)-1], &r)
	return r
}

func newTestServer(t *testing.T) (*Server, *fakeConn) {
	t.Helper()
	ctrl := gomock.NewController(t)
	worker := mediamock.NewMockMediaWorker(ctrl)

	channels := channel.New()
	clients := client.New()
	adm := admission.New("serversecret", "adminsecret", clients)
	router := routing.New(channels, clients, worker, 800*time.Millisecond)

	srv := NewServer(Config{RequestTimeout: time.Second, RateLimitRequests: 1000, RateLimitWindow: time.Minute}, adm, channels, clients, worker, router)
	router.SetSink(srv)

	conn := &fakeConn{}
	return srv, conn
}

func sendRequest(t *testing.T, srv *Server, sess *session, id int64, event string, payload interface{}) response {
	t.Helper()
	raw, _ := json.Marshal(payload)
	env := envelope{Event: event, Payload: raw, ID: &id}
	frame, _ := json.Marshal(env)
	srv.handleFrame(sess, frame)
	conn := sess.conn.(*fakeConn)
	return conn.last()
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, conn := newTestServer(t)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)

	resp := sendRequest(t, srv, sess, 1, "getRtpCapabilities", nil)
	if resp.OK {
		t.Fatal("expected unauthenticated request to fail")
	}
	if resp.Error == nil || resp.Error.Kind != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %+v", resp.Error)
	}
}

func TestAuthenticatePendingSessionStillRejected(t *testing.T) {
	srv, conn := newTestServer(t)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)

	resp := sendRequest(t, srv, sess, 1, "authenticate", map[string]string{
		"displayName":  "alice",
		"serverSecret": "serversecret",
	})
	if !resp.OK {
		t.Fatalf("expected authenticate to succeed, got %+v", resp.Error)
	}

	// Pending clients are not yet active, so a media request still fails.
	resp = sendRequest(t, srv, sess, 2, "getRtpCapabilities", nil)
	if resp.OK {
		t.Fatal("expected pending session to still be rejected for non-auth requests")
	}
}

func TestAdminAuthenticateGoesActiveImmediately(t *testing.T) {
	srv, conn := newTestServer(t)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)

	resp := sendRequest(t, srv, sess, 1, "adminAuthenticate", map[string]string{
		"displayName":  "root",
		"serverSecret": "serversecret",
		"adminSecret":  "adminsecret",
	})
	if !resp.OK {
		t.Fatalf("expected adminAuthenticate to succeed, got %+v", resp.Error)
	}

	resp = sendRequest(t, srv, sess, 2, "createChannel", map[string]string{"name": "ops"})
	if !resp.OK {
		t.Fatalf("expected admin to create a channel, got %+v", resp.Error)
	}
}

func TestDeleteChannelCascadesProducersAndMembers(t *testing.T) {
	srv, conn := newTestServer(t)
	worker := srv.worker.(*mediamock.MockMediaWorker)

	ch, err := srv.channels.Create("ops", "")
	if err != nil {
		t.Fatalf("Create channel: %v", err)
	}

	speaker, err := srv.clients.EnrollAdmin("speaker", core.SessionID("speaker-sess"))
	if err != nil {
		t.Fatalf("EnrollAdmin: %v", err)
	}
	listener, err := srv.clients.EnrollAdmin("listener", core.SessionID("listener-sess"))
	if err != nil {
		t.Fatalf("EnrollAdmin: %v", err)
	}
	speakAll := true
	listenAll := true
	if _, err := srv.clients.UpdatePermissions(speaker.ID, domain.PermissionPatch{SpeakToAll: &speakAll}); err != nil {
		t.Fatalf("UpdatePermissions speaker: %v", err)
	}
	if _, err := srv.clients.UpdatePermissions(listener.ID, domain.PermissionPatch{ListenToAll: &listenAll}); err != nil {
		t.Fatalf("UpdatePermissions listener: %v", err)
	}
	if _, err := srv.clients.AddToChannel(speaker.ID, ch.ID); err != nil {
		t.Fatalf("AddToChannel speaker: %v", err)
	}
	if _, err := srv.clients.AddToChannel(listener.ID, ch.ID); err != nil {
		t.Fatalf("AddToChannel listener: %v", err)
	}
	if err := srv.channels.AddMember(ch.ID, speaker.ID); err != nil {
		t.Fatalf("AddMember speaker: %v", err)
	}
	if err := srv.channels.AddMember(ch.ID, listener.ID); err != nil {
		t.Fatalf("AddMember listener: %v", err)
	}

	producerID := domain.NewProducerID()
	worker.EXPECT().CloseProducer(producerID).Return(nil)
	if err := srv.router.OnProducerOpened(speaker.ID, producerID); err != nil {
		t.Fatalf("OnProducerOpened: %v", err)
	}

	adminSess := newSession(core.SessionID("admin-sess"), conn, srv.limiter)
	adminSess.setActive("admin-client", true)

	resp := sendRequest(t, srv, adminSess, 1, "deleteChannel", map[string]string{"channelId": string(ch.ID)})
	if !resp.OK {
		t.Fatalf("expected deleteChannel to succeed, got %+v", resp.Error)
	}

	if srv.channels.Exists(ch.ID) {
		t.Fatal("expected channel to be gone")
	}
	speakerAfter, err := srv.clients.Get(speaker.ID)
	if err != nil {
		t.Fatalf("Get speaker: %v", err)
	}
	if speakerAfter.IsMember(ch.ID) {
		t.Fatal("expected speaker's membership in the deleted channel to be severed")
	}
	listenerAfter, err := srv.clients.Get(listener.ID)
	if err != nil {
		t.Fatalf("Get listener: %v", err)
	}
	if listenerAfter.IsMember(ch.ID) {
		t.Fatal("expected listener's membership in the deleted channel to be severed")
	}
}

func TestRateLimitRejectionIsNotTimeout(t *testing.T) {
	srv, conn := newTestServer(t)
	srv.limiter = newRateLimiter(1, time.Minute)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)
	sess.setActive("client-1", false)

	worker := srv.worker.(*mediamock.MockMediaWorker)
	worker.EXPECT().RTPCapabilities().Return(core.Capabilities{})

	first := sendRequest(t, srv, sess, 1, "getRtpCapabilities", nil)
	if !first.OK {
		t.Fatalf("expected first request within the limit to succeed, got %+v", first.Error)
	}

	second := sendRequest(t, srv, sess, 2, "getRtpCapabilities", nil)
	if second.OK || second.Error.Kind != apperr.RateLimited {
		t.Fatalf("expected RateLimited for the over-limit request, got %+v", second)
	}
}

func TestHandlerDeadlineExceededYieldsTimeout(t *testing.T) {
	srv, conn := newTestServer(t)
	srv.cfg.RequestTimeout = 5 * time.Millisecond
	worker := srv.worker.(*mediamock.MockMediaWorker)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)
	sess.setActive("client-1", false)

	blocked := make(chan struct{})
	worker.EXPECT().RTPCapabilities().DoAndReturn(func() core.Capabilities {
		<-blocked
		return core.Capabilities{}
	})
	defer close(blocked)

	resp := sendRequest(t, srv, sess, 1, "getRtpCapabilities", nil)
	if resp.OK || resp.Error.Kind != apperr.Timeout {
		t.Fatalf("expected Timeout once the handler deadline elapsed, got %+v", resp)
	}
}

func TestUnknownEventIsBadRequest(t *testing.T) {
	srv, conn := newTestServer(t)
	sess := newSession(core.SessionID("s1"), conn, srv.limiter)
	sess.setActive("client-1", false)

	resp := sendRequest(t, srv, sess, 1, "doesNotExist", nil)
	if resp.OK || resp.Error.Kind != "BadRequest" {
		t.Fatalf("expected BadRequest for unknown event, got %+v", resp)
	}
}
