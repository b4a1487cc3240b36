// Package admission implements the Admission Controller (§4.6): shared
// secret validation with constant-time comparison, pending enrollment,
// and the admin fast path. Grounded on the teacher's secret-bearing
// client-token middleware idea (internal/adapters/http/router.go), but
// reworked from a cookie check into a signaling-layer request handler.
package admission

import (
	"crypto/subtle"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

// Controller gates new sessions against the configured secrets.
type Controller struct {
	serverSecret string
	adminSecret  string
	clients      *client.Registry
}

func New(serverSecret, adminSecret string, clients *client.Registry) *Controller {
	return &Controller{serverSecret: serverSecret, adminSecret: adminSecret, clients: clients}
}

// AdminEnabled reports whether the admin path is open at all (§4.6:
// "absence of a secret means the corresponding path is disabled").
func (c *Controller) AdminEnabled() bool {
	return c.adminSecret != ""
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison so the failure path takes comparable time
		// regardless of the length mismatch itself leaking information.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate validates serverSecret and either rebinds a remembered
// identity (clientID non-empty, matching a closed record — §3's
// reconnection path) back to active, or enrolls displayName as a fresh
// pending client. Mismatch yields Unauthorized with no distinguishing
// detail.
func (c *Controller) Authenticate(clientID domain.ClientID, displayName, serverSecret string, sid core.SessionID) (domain.Client, error) {
	if c.serverSecret == "" || !constantTimeEqual(serverSecret, c.serverSecret) {
		return domain.Client{}, apperr.New(apperr.Unauthorized, "invalid server secret")
	}
	if clientID != "" {
		if reconnected, err := c.clients.Reconnect(clientID, displayName, sid); err == nil {
			return reconnected, nil
		}
	}
	return c.clients.EnrollPending(displayName, sid)
}

// AdminAuthenticate validates both secrets and enrolls displayName
// directly as an active, admin-flagged client (§4.5 adminAuthenticate).
func (c *Controller) AdminAuthenticate(displayName, serverSecret, adminSecret string, sid core.SessionID) (domain.Client, error) {
	if c.serverSecret == "" || !constantTimeEqual(serverSecret, c.serverSecret) {
		return domain.Client{}, apperr.New(apperr.Unauthorized, "invalid server secret")
	}
	if !c.AdminEnabled() || !constantTimeEqual(adminSecret, c.adminSecret) {
		return domain.Client{}, apperr.New(apperr.Unauthorized, "invalid admin secret")
	}
	return c.clients.EnrollAdmin(displayName, sid)
}
