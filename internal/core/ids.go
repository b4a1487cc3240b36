// Package core declares the interfaces that let the upper layers (channel
// registry, client registry, routing, signaling) talk to transport and
// media without depending on their concrete implementations.
package core

import "github.com/dkeye/intercom/internal/domain"

// SessionID identifies one live signaling connection. It is distinct from
// domain.ClientID: a client may reconnect under a new SessionID, and a
// pending client has a SessionID before it has ever been authorized.
type SessionID string

// Frame is a raw, already-framed wire payload (one JSON message).
type Frame []byte

// SessionIDOf is a small helper so adapters can derive a SessionID the
// same way everywhere (from the client-token cookie, a header, etc.).
func SessionIDOf(token domain.SessionToken) SessionID { return SessionID(token) }
