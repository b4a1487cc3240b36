package media

import (
	"testing"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestCloseTransportTombstonesInsteadOfForgetting(t *testing.T) {
	w := newTestWorker(t)
	params, err := w.CreateTransport(core.SessionID("sess-1"), core.TransportSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	if err := w.CloseTransport(params.ID); err != nil {
		t.Fatalf("CloseTransport: %v", err)
	}

	if _, err := w.ConnectTransport(params.ID, ""); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict for ConnectTransport on a closed transport, got %v", err)
	}
	if _, err := w.Produce(params.ID, core.ProducerAppData{}); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict for Produce on a closed transport, got %v", err)
	}
	if _, err := w.Consume(params.ID, domain.NewProducerID(), false); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict for Consume on a closed transport, got %v", err)
	}
}

func TestConnectTransportUnknownIDIsNotFound(t *testing.T) {
	w := newTestWorker(t)
	if _, err := w.ConnectTransport(domain.TransportID("never-existed"), ""); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound for an id that never existed, got %v", err)
	}
}

func TestCloseTransportTwiceIsConflictNotNotFound(t *testing.T) {
	w := newTestWorker(t)
	params, err := w.CreateTransport(core.SessionID("sess-1"), core.TransportReceive)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if err := w.CloseTransport(params.ID); err != nil {
		t.Fatalf("first CloseTransport: %v", err)
	}
	if err := w.CloseTransport(params.ID); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict on double close, got %v", err)
	}
}
