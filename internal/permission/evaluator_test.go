package permission

import (
	"testing"

	"github.com/dkeye/intercom/internal/domain"
)

func newTestClient(channels ...domain.ChannelID) *domain.Client {
	return &domain.Client{
		ID:          domain.NewClientID(),
		Channels:    channels,
		Permissions: domain.NewPermissionMatrix(),
	}
}

func TestAllowRequiresMembership(t *testing.T) {
	c := newTestClient()
	c.Permissions.SpeakToAll = true

	if Allow(c, "main", domain.DirectionSpeak) {
		t.Fatal("expected deny: client is not a member of main")
	}
}

func TestAllowGlobalFlag(t *testing.T) {
	c := newTestClient("main")
	c.Permissions.SpeakToAll = true

	if !Allow(c, "main", domain.DirectionSpeak) {
		t.Fatal("expected allow via speakToAll")
	}
	if Allow(c, "main", domain.DirectionListen) {
		t.Fatal("expected deny: listenToAll not set")
	}
}

func TestAllowPerChannelFlag(t *testing.T) {
	c := newTestClient("main", "side")
	c.Permissions.ListenTo["main"] = true

	if !Allow(c, "main", domain.DirectionListen) {
		t.Fatal("expected allow via listenTo[main]")
	}
	if Allow(c, "side", domain.DirectionListen) {
		t.Fatal("expected deny: side has no listen grant")
	}
}

func TestSpeakableChannels(t *testing.T) {
	c := newTestClient("main", "side")
	c.Permissions.SpeakTo["main"] = true

	got := SpeakableChannels(c)
	if len(got) != 1 || got[0] != "main" {
		t.Fatalf("expected [main], got %v", got)
	}
}
