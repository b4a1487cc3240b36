// Package client implements the Client Registry (§4.3): identity, session
// handle, admin flag, channel memberships, permission matrix, and
// per-channel user settings, plus the pending-queue of unauthorized
// sessions awaiting an admin decision. Grounded on the same single-writer
// map pattern as internal/channel, mirroring the teacher's registry.go.
package client

import (
	"sync"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

// Registry is the Client Registry. The zero value is not usable; use New.
type Registry struct {
	mu       sync.Mutex
	clients  map[domain.ClientID]*domain.Client
	bySession map[core.SessionID]domain.ClientID
	pending  map[domain.ClientID]struct{}
}

func New() *Registry {
	return &Registry{
		clients:   make(map[domain.ClientID]*domain.Client),
		bySession: make(map[core.SessionID]domain.ClientID),
		pending:   make(map[domain.ClientID]struct{}),
	}
}

// EnrollPending creates a new client in the pending state bound to sid.
func (r *Registry) EnrollPending(displayName string, sid core.SessionID) (domain.Client, error) {
	if err := domain.ValidateDisplayName(displayName); err != nil {
		return domain.Client{}, apperr.Wrap(apperr.BadRequest, err, "invalid display name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &domain.Client{
		ID:           domain.NewClientID(),
		DisplayName:  displayName,
		SessionToken: domain.SessionToken(sid),
		Status:       domain.ClientPending,
		Permissions:  domain.NewPermissionMatrix(),
		UserSettings: make(map[domain.ChannelID]domain.ChannelSettings),
	}
	r.clients[c.ID] = c
	r.bySession[sid] = c.ID
	r.pending[c.ID] = struct{}{}
	return *c, nil
}

// EnrollAdmin creates a client that is active and admin-flagged immediately
// (§4.5: "adminAuthenticate ... as above with admin flag true", skipping
// the pending state entirely).
func (r *Registry) EnrollAdmin(displayName string, sid core.SessionID) (domain.Client, error) {
	if err := domain.ValidateDisplayName(displayName); err != nil {
		return domain.Client{}, apperr.Wrap(apperr.BadRequest, err, "invalid display name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &domain.Client{
		ID:           domain.NewClientID(),
		DisplayName:  displayName,
		SessionToken: domain.SessionToken(sid),
		AdminFlag:    true,
		Status:       domain.ClientActive,
		Permissions:  domain.NewPermissionMatrix(),
		UserSettings: make(map[domain.ChannelID]domain.ChannelSettings),
	}
	r.clients[c.ID] = c
	r.bySession[sid] = c.ID
	return *c, nil
}

// Authorize moves a pending client to active, seeds its initial channel
// membership and per-channel settings (§4.3), and grants the given
// permissions. It does not itself touch the Channel Registry's member
// sets — the caller (the signaling layer's authorizePending handler) wires those in the same
// operation, in the order the cyclic-relationship note in §9 dictates.
func (r *Registry) Authorize(id domain.ClientID, channels []domain.ChannelID, perms domain.PermissionMatrix) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, apperr.New(apperr.NotFound, "unknown client")
	}
	if _, pending := r.pending[id]; !pending {
		return domain.Client{}, apperr.New(apperr.NotFound, "client is not pending")
	}

	delete(r.pending, id)
	c.Status = domain.ClientActive
	c.Channels = append([]domain.ChannelID(nil), channels...)
	c.Permissions = perms
	for _, ch := range channels {
		c.UserSettings[ch] = domain.DefaultChannelSettings()
	}
	return *c, nil
}

// Reject drops a pending entry. The second call for the same id is a
// no-op failure (§8: "authorizing then rejecting the same client id is a
// no-op on the second call (NotFound)").
func (r *Registry) Reject(id domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, pending := r.pending[id]; !pending {
		return apperr.New(apperr.NotFound, "client is not pending")
	}
	delete(r.pending, id)
	delete(r.clients, id)
	return nil
}

// PendingList returns a snapshot of all clients currently awaiting a
// decision, ordered by insertion is not guaranteed — callers that need a
// stable order should sort by ID.
func (r *Registry) PendingList() []domain.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Client, 0, len(r.pending))
	for id := range r.pending {
		out = append(out, *r.clients[id])
	}
	return out
}

// UpdatePermissions applies a partial patch to id's permission matrix and
// returns the resulting matrix.
func (r *Registry) UpdatePermissions(id domain.ClientID, patch domain.PermissionPatch) (domain.PermissionMatrix, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.PermissionMatrix{}, apperr.New(apperr.NotFound, "unknown client")
	}
	c.Permissions.Apply(patch)
	return c.Permissions.Clone(), nil
}

// AddToChannel appends ch to id's membership (idempotent) and seeds
// default user settings for it (§3: "userSettings[C] is defined iff the
// client is a member of C").
func (r *Registry) AddToChannel(id domain.ClientID, ch domain.ChannelID) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, apperr.New(apperr.NotFound, "unknown client")
	}
	if !c.IsMember(ch) {
		c.Channels = append(c.Channels, ch)
	}
	if _, ok := c.UserSettings[ch]; !ok {
		c.UserSettings[ch] = domain.DefaultChannelSettings()
	}
	return *c, nil
}

// RemoveFromChannel drops ch from id's membership and discards its user
// settings for that channel (idempotent).
func (r *Registry) RemoveFromChannel(id domain.ClientID, ch domain.ChannelID) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, apperr.New(apperr.NotFound, "unknown client")
	}
	filtered := c.Channels[:0:0]
	for _, existing := range c.Channels {
		if existing != ch {
			filtered = append(filtered, existing)
		}
	}
	c.Channels = filtered
	delete(c.UserSettings, ch)
	return *c, nil
}

// SetChannelMute sets id's own hearing mute for ch. No-op repeats are
// cheap and explicitly allowed (§8).
func (r *Registry) SetChannelMute(id domain.ClientID, ch domain.ChannelID, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown client")
	}
	settings, ok := c.UserSettings[ch]
	if !ok {
		return apperr.New(apperr.NotFound, "client is not a member of that channel")
	}
	settings.Muted = muted
	c.UserSettings[ch] = settings
	return nil
}

// SetChannelVolume sets id's own hearing volume for ch, clamped to [0, 1].
func (r *Registry) SetChannelVolume(id domain.ClientID, ch domain.ChannelID, volume float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown client")
	}
	settings, ok := c.UserSettings[ch]
	if !ok {
		return apperr.New(apperr.NotFound, "client is not a member of that channel")
	}
	settings.Volume = domain.ClampVolume(volume)
	c.UserSettings[ch] = settings
	return nil
}

// Close transitions id to closed and drops its session binding. Closing
// twice is a safe no-op (§8).
func (r *Registry) Close(id domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	if c.Status == domain.ClientClosed {
		return nil
	}
	if c.SessionToken != "" {
		delete(r.bySession, core.SessionID(c.SessionToken))
	}
	c.Status = domain.ClientClosed
	c.SessionToken = ""
	delete(r.pending, id)
	return nil
}

// Get returns a copy of the client record for id.
func (r *Registry) Get(id domain.ClientID) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, apperr.New(apperr.NotFound, "unknown client")
	}
	return *c, nil
}

// BySession looks up the client currently bound to a live session handle.
func (r *Registry) BySession(sid core.SessionID) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySession[sid]
	if !ok {
		return domain.Client{}, apperr.New(apperr.NotFound, "no client bound to that session")
	}
	return *r.clients[id], nil
}

// Reconnect rebinds a remembered closed identity to a new session handle
// and promotes it directly back to active (§3: "re-connection of the same
// identity creates a new session handle and may promote back to active if
// the identity is remembered"). Only a previously-active identity ever
// reaches ClientClosed (a disconnect while still pending leaves the
// record pending, unreconciled), so a closed, displayName-matching id is
// proof the caller once held real channel/permission state worth
// restoring. A stale or forged id simply fails NotFound, leaving the
// caller to fall back to ordinary pending enrollment.
func (r *Registry) Reconnect(id domain.ClientID, displayName string, sid core.SessionID) (domain.Client, error) {
	r.mu.Lock()
	c, ok := r.clients[id]
	eligible := ok && c.Status == domain.ClientClosed && c.DisplayName == displayName
	r.mu.Unlock()
	if !eligible {
		return domain.Client{}, apperr.New(apperr.NotFound, "no remembered identity")
	}

	if err := r.Rebind(id, sid); err != nil {
		return domain.Client{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c.Status = domain.ClientActive
	return *c, nil
}

// Rebind points an existing client at a new session handle — used when a
// remembered identity reconnects (§3: "re-connection ... creates a new
// session handle and may promote back to active").
func (r *Registry) Rebind(id domain.ClientID, sid core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown client")
	}
	if c.SessionToken != "" {
		delete(r.bySession, core.SessionID(c.SessionToken))
	}
	c.SessionToken = domain.SessionToken(sid)
	r.bySession[sid] = id
	return nil
}
