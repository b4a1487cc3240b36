package client

import (
	"testing"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

func TestEnrollPendingThenAuthorize(t *testing.T) {
	r := New()
	sid := core.SessionID("sess-1")

	pending, err := r.EnrollPending("alice", sid)
	if err != nil {
		t.Fatalf("EnrollPending: %v", err)
	}
	if pending.Status != domain.ClientPending {
		t.Fatalf("expected pending status, got %v", pending.Status)
	}

	perms := domain.NewPermissionMatrix()
	perms.SpeakToAll = true
	active, err := r.Authorize(pending.ID, []domain.ChannelID{domain.SystemChannelID}, perms)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if active.Status != domain.ClientActive {
		t.Fatalf("expected active status, got %v", active.Status)
	}
	if _, ok := active.UserSettings[domain.SystemChannelID]; !ok {
		t.Fatal("expected seeded user settings for the joined channel")
	}
}

func TestRejectTwiceIsNotFound(t *testing.T) {
	r := New()
	pending, _ := r.EnrollPending("bob", core.SessionID("sess-2"))

	if err := r.Reject(pending.ID); err != nil {
		t.Fatalf("first Reject: %v", err)
	}
	if err := r.Reject(pending.ID); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound on second Reject, got %v", err)
	}
}

func TestEnrollAdminSkipsPending(t *testing.T) {
	r := New()
	admin, err := r.EnrollAdmin("root", core.SessionID("sess-3"))
	if err != nil {
		t.Fatalf("EnrollAdmin: %v", err)
	}
	if admin.Status != domain.ClientActive || !admin.AdminFlag {
		t.Fatalf("expected active admin client, got %+v", admin)
	}

	list := r.PendingList()
	for _, p := range list {
		if p.ID == admin.ID {
			t.Fatal("admin client must not appear in the pending queue")
		}
	}
}

func TestSetChannelVolumeRequiresMembership(t *testing.T) {
	r := New()
	c, _ := r.EnrollAdmin("root", core.SessionID("sess-4"))

	if err := r.SetChannelVolume(c.ID, "not-a-member-channel", 0.5); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for non-member channel, got %v", err)
	}

	r.AddToChannel(c.ID, "main")
	if err := r.SetChannelVolume(c.ID, "main", 3.0); err != nil {
		t.Fatalf("SetChannelVolume: %v", err)
	}
	got, _ := r.Get(c.ID)
	if got.UserSettings["main"].Volume != 1.0 {
		t.Fatalf("expected volume clamped to 1.0, got %v", got.UserSettings["main"].Volume)
	}
}

func TestCloseIsIdempotentAndUnbindsSession(t *testing.T) {
	r := New()
	sid := core.SessionID("sess-5")
	c, _ := r.EnrollAdmin("root", sid)

	if err := r.Close(c.ID); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := r.Close(c.ID); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if _, err := r.BySession(sid); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected session binding to be dropped, got %v", err)
	}
}

func TestRebindPointsToNewSession(t *testing.T) {
	r := New()
	oldSID := core.SessionID("sess-old")
	newSID := core.SessionID("sess-new")
	c, _ := r.EnrollAdmin("root", oldSID)

	if err := r.Rebind(c.ID, newSID); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if _, err := r.BySession(oldSID); !apperr.Is(err, apperr.NotFound) {
		t.Fatal("expected old session binding to be dropped")
	}
	found, err := r.BySession(newSID)
	if err != nil || found.ID != c.ID {
		t.Fatalf("expected client bound to new session, got %+v, %v", found, err)
	}
}

func TestReconnectPromotesClosedIdentityBackToActive(t *testing.T) {
	r := New()
	oldSID := core.SessionID("sess-old")
	newSID := core.SessionID("sess-new")
	c, _ := r.EnrollAdmin("root", oldSID)
	if err := r.Close(c.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := r.Reconnect(c.ID, "root", newSID)
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if got.Status != domain.ClientActive {
		t.Fatalf("expected status active, got %v", got.Status)
	}
	found, err := r.BySession(newSID)
	if err != nil || found.ID != c.ID {
		t.Fatalf("expected client bound to new session, got %+v, %v", found, err)
	}
}

func TestReconnectRejectsMismatchedDisplayName(t *testing.T) {
	r := New()
	sid := core.SessionID("sess-old")
	c, _ := r.EnrollAdmin("root", sid)
	_ = r.Close(c.ID)

	if _, err := r.Reconnect(c.ID, "impostor", core.SessionID("sess-new")); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for mismatched display name, got %v", err)
	}
}

func TestReconnectRejectsStillActiveClient(t *testing.T) {
	r := New()
	sid := core.SessionID("sess-old")
	c, _ := r.EnrollAdmin("root", sid)

	if _, err := r.Reconnect(c.ID, "root", core.SessionID("sess-new")); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for a client that never closed, got %v", err)
	}
}
