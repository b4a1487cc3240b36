package routing

import (
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/intercom/internal/channel"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/dkeye/intercom/internal/mediamock"
)

// fakeSink records every call the router makes to it, without blocking.
type fakeSink struct {
	opened          []domain.ClientID
	closed          []domain.ClientID
	speaking        []domain.ClientID
	stoppedSpeaking []domain.ClientID
}

func (f *fakeSink) ProducerOpened(subscriber domain.ClientID, _ domain.ChannelID, _ domain.ProducerID, _ domain.ClientID) {
	f.opened = append(f.opened, subscriber)
}
func (f *fakeSink) ProducerClosed(subscriber domain.ClientID, _ domain.ProducerID) {
	f.closed = append(f.closed, subscriber)
}
func (f *fakeSink) ClientSpeaking(_ domain.ChannelID, clientID domain.ClientID) {
	f.speaking = append(f.speaking, clientID)
}
func (f *fakeSink) ClientStoppedSpeaking(_ domain.ChannelID, clientID domain.ClientID) {
	f.stoppedSpeaking = append(f.stoppedSpeaking, clientID)
}

// setup builds a router with a real channel/client registry (these are
// pure in-memory collaborators, not worth mocking) and a mocked worker.
func setup(t *testing.T) (*Router, *channel.Registry, *client.Registry, *fakeSink) {
	t.Helper()
	ctrl := gomock.NewController(t)
	worker := mediamock.NewMockMediaWorker(ctrl)

	channels := channel.New()
	clients := client.New()
	r := New(channels, clients, worker, 50*time.Millisecond)
	sink := &fakeSink{}
	r.SetSink(sink)
	return r, channels, clients, sink
}

func enrollMember(t *testing.T, clients *client.Registry, channels *channel.Registry, ch domain.ChannelID, perms domain.PermissionMatrix) domain.Client {
	t.Helper()
	pending, err := clients.EnrollPending("member", core.SessionID(domain.NewClientID()))
	if err != nil {
		t.Fatalf("EnrollPending: %v", err)
	}
	active, err := clients.Authorize(pending.ID, []domain.ChannelID{ch}, perms)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if err := channels.AddMember(ch, active.ID); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return active
}

func TestOnProducerOpenedCreatesConsumerForPermittedListener(t *testing.T) {
	r, channels, clients, sink := setup(t)

	speakPerms := domain.NewPermissionMatrix()
	speakPerms.SpeakToAll = true
	owner := enrollMember(t, clients, channels, domain.SystemChannelID, speakPerms)

	listenPerms := domain.NewPermissionMatrix()
	listenPerms.ListenToAll = true
	listener := enrollMember(t, clients, channels, domain.SystemChannelID, listenPerms)

	pid := domain.NewProducerID()
	if err := r.OnProducerOpened(owner.ID, pid); err != nil {
		t.Fatalf("OnProducerOpened: %v", err)
	}

	if len(sink.opened) != 1 || sink.opened[0] != listener.ID {
		t.Fatalf("expected a ProducerOpened call for the listener, got %v", sink.opened)
	}

	snap, err := channels.Get(domain.SystemChannelID)
	if err != nil || snap.ProducerCount != 1 {
		t.Fatalf("expected producer registered on the channel, got %+v, %v", snap, err)
	}
}

func TestOnProducerOpenedSkipsNonMemberListeners(t *testing.T) {
	r, channels, clients, sink := setup(t)

	speakPerms := domain.NewPermissionMatrix()
	speakPerms.SpeakToAll = true
	owner := enrollMember(t, clients, channels, domain.SystemChannelID, speakPerms)

	// A listener with listenToAll who is a member of a different channel only.
	side, err := channels.Create("side", "")
	if err != nil {
		t.Fatalf("Create side channel: %v", err)
	}
	listenPerms := domain.NewPermissionMatrix()
	listenPerms.ListenToAll = true
	enrollMember(t, clients, channels, side.ID, listenPerms)

	pid := domain.NewProducerID()
	if err := r.OnProducerOpened(owner.ID, pid); err != nil {
		t.Fatalf("OnProducerOpened: %v", err)
	}

	if len(sink.opened) != 0 {
		t.Fatalf("expected no consumers for a listener outside the channel, got %v", sink.opened)
	}
}

func TestReconcilePermissionsClosesProducerOnRevocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	worker := mediamock.NewMockMediaWorker(ctrl)
	channels := channel.New()
	clients := client.New()
	r := New(channels, clients, worker, 50*time.Millisecond)
	sink := &fakeSink{}
	r.SetSink(sink)

	speakPerms := domain.NewPermissionMatrix()
	speakPerms.SpeakToAll = true
	owner := enrollMember(t, clients, channels, domain.SystemChannelID, speakPerms)

	pid := domain.NewProducerID()
	worker.EXPECT().CloseProducer(pid).Return(nil)
	if err := r.OnProducerOpened(owner.ID, pid); err != nil {
		t.Fatalf("OnProducerOpened: %v", err)
	}

	// Revoke speak right entirely: the owned producer must be closed.
	noSpeak := domain.PermissionPatch{SpeakToAll: boolPtr(false)}
	if _, err := clients.UpdatePermissions(owner.ID, noSpeak); err != nil {
		t.Fatalf("UpdatePermissions: %v", err)
	}
	r.ReconcilePermissions(owner.ID)

	if _, ok := r.OwnerProducer(owner.ID); ok {
		t.Fatal("expected producer to be fully closed after revocation")
	}
}

func boolPtr(b bool) *bool { return &b }
