// Package signaling implements the Signaling Layer (§4.5): the
// session-oriented JSON message bus between each client and the server.
// Grounded on the teacher's internal/adapters/signal package (envelope
// parsing, write/read pumps, rate limiting), reworked around this
// system's request table and authentication state machine instead of the
// teacher's join/leave/rename room protocol.
package signaling

import (
	"encoding/json"

	"github.com/dkeye/intercom/internal/apperr"
)

// envelope is the minimal shape every inbound frame decodes to first, so
// the dispatcher can tell requests from events are never sent by clients
// (only the server emits events) before decoding the full payload.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	ID      *int64          `json:"id,omitempty"`
}

// response is a reply to a request; ID echoes the request's id (§6).
type response struct {
	ID     int64       `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *wireError  `json:"error,omitempty"`
}

type wireError struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// wireEvent is a fire-and-forget server->client message; it never carries
// an id (§6).
type wireEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

func errorResponse(id int64, err error) response {
	if ae, ok := err.(*apperr.Error); ok {
		return response{ID: id, OK: false, Error: &wireError{Kind: ae.Kind, Message: ae.Message}}
	}
	return response{ID: id, OK: false, Error: &wireError{Kind: apperr.KindOf(err), Message: "internal error"}}
}

func okResponse(id int64, result interface{}) response {
	return response{ID: id, OK: true, Result: result}
}
