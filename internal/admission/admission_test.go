package admission

import (
	"testing"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

func TestAuthenticateWrongSecretUnauthorized(t *testing.T) {
	c := New("shh", "", client.New())
	if _, err := c.Authenticate("", "alice", "wrong", core.SessionID("s1")); !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestAuthenticateCorrectSecretEnrollsPending(t *testing.T) {
	c := New("shh", "", client.New())
	got, err := c.Authenticate("", "alice", "shh", core.SessionID("s1"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.DisplayName != "alice" {
		t.Fatalf("expected display name alice, got %q", got.DisplayName)
	}
}

func TestAdminDisabledWhenSecretEmpty(t *testing.T) {
	c := New("shh", "", client.New())
	if c.AdminEnabled() {
		t.Fatal("expected admin path disabled with empty admin secret")
	}
	if _, err := c.AdminAuthenticate("root", "shh", "anything", core.SessionID("s1")); !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected Unauthorized when admin path disabled, got %v", err)
	}
}

func TestAdminAuthenticateRequiresBothSecrets(t *testing.T) {
	c := New("shh", "adminshh", client.New())
	if !c.AdminEnabled() {
		t.Fatal("expected admin path enabled")
	}
	if _, err := c.AdminAuthenticate("root", "wrong", "adminshh", core.SessionID("s1")); !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected Unauthorized for wrong server secret, got %v", err)
	}
	if _, err := c.AdminAuthenticate("root", "shh", "wrong", core.SessionID("s1")); !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected Unauthorized for wrong admin secret, got %v", err)
	}
	got, err := c.AdminAuthenticate("root", "shh", "adminshh", core.SessionID("s1"))
	if err != nil {
		t.Fatalf("AdminAuthenticate: %v", err)
	}
	if !got.AdminFlag {
		t.Fatal("expected admin flag set")
	}
}

func TestAuthenticateReconnectsRememberedIdentity(t *testing.T) {
	clients := client.New()
	c := New("shh", "", clients)

	enrolled, err := clients.EnrollAdmin("alice", core.SessionID("s1"))
	if err != nil {
		t.Fatalf("EnrollAdmin: %v", err)
	}
	if err := clients.Close(enrolled.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := c.Authenticate(enrolled.ID, "alice", "shh", core.SessionID("s2"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != enrolled.ID {
		t.Fatalf("expected reconnect to reuse id %v, got %v", enrolled.ID, got.ID)
	}
	if got.Status != domain.ClientActive {
		t.Fatalf("expected status active after reconnect, got %v", got.Status)
	}
}

func TestAuthenticateFallsBackToPendingForUnknownClientID(t *testing.T) {
	c := New("shh", "", client.New())

	got, err := c.Authenticate("not-a-real-client", "alice", "shh", core.SessionID("s1"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.Status != domain.ClientPending {
		t.Fatalf("expected fresh pending enrollment, got %v", got.Status)
	}
}
