package core

import (
	"time"

	"github.com/dkeye/intercom/internal/domain"
)

// TransportDirection is the side of a client's media a Transport carries
// (§3: "either a send transport ... or a receive transport").
type TransportDirection int

const (
	TransportSend TransportDirection = iota
	TransportReceive
)

// Capabilities is the static, server-wide set of codecs clients negotiate
// against. Audio-only, Opus, per the codec policy in §4.1.
type Capabilities struct {
	Codecs []CodecCapability
}

type CodecCapability struct {
	MimeType    string
	ClockRate   uint32
	Channels    uint16
	SDPFmtpLine string
}

// TransportParams is what a client needs to connect a transport: in this
// WebRTC substrate that's an SDP answer once the client's offer has been
// applied, plus the ICE server list it should also try.
type TransportParams struct {
	ID         domain.TransportID
	Direction  TransportDirection
	ICEServers []string
}

// ProducerAppData is the hint a producing client attaches so the worker
// (and the routing core above it) know which channel the track should be
// evaluated against first; final channel membership is still resolved by
// the permission evaluator, not by this hint alone.
type ProducerAppData struct {
	ChannelHint domain.ChannelID
}

// MediaEventKind enumerates the asynchronous notifications the worker
// raises; the routing core and signaling layer subscribe to these instead
// of polling.
type MediaEventKind int

const (
	EventProducerOpened MediaEventKind = iota
	EventProducerClosed
	EventConsumerClosed
	EventTransportClosed
	EventWorkerDied
)

type MediaEvent struct {
	Kind         MediaEventKind
	SessionID    SessionID
	TransportID  domain.TransportID
	ProducerID   domain.ProducerID
	ConsumerID   domain.ConsumerID
	Err          error
}

// SpeakingEvent reports a producer's measured level for one observer tick,
// or silence. Consult Silence before Volume: a silent tick still carries a
// Volume (the measured level when it fell below the threshold, zero when
// no level was sampled at all).
type SpeakingEvent struct {
	ProducerID domain.ProducerID
	Volume     float64
	Silence    bool
}

// MediaWorker owns all SFU state: transports, producers, consumers, and
// the shared active-speaker observer (§4.1). Every method is safe to call
// concurrently; none may be called while holding a registry lock (§5).
type MediaWorker interface {
	RTPCapabilities() Capabilities

	CreateTransport(sid SessionID, dir TransportDirection) (*TransportParams, error)

	// ConnectTransport applies the client's SDP offer (carrying its DTLS
	// fingerprint and ICE ufrag/pwd) and returns the server's SDP answer.
	// A transport can be connected exactly once; a second call fails with
	// apperr.Conflict (AlreadyConnected).
	ConnectTransport(id domain.TransportID, offerSDP string) (answerSDP string, err error)

	// Produce registers a new producer on an already-connected send
	// transport. The underlying RTP track is expected to start flowing
	// once the offer/answer exchange above completes; Produce waits (up to
	// a bounded time) for that track to arrive and fails with
	// apperr.Timeout if it does not.
	Produce(transportID domain.TransportID, appData ProducerAppData) (domain.ProducerID, error)

	CanConsume(producerID domain.ProducerID) bool

	// Consume creates a consumer pairing producerID to a receive
	// transport. It returns the server-initiated renegotiation offer the
	// subscribing client must answer via ApplyConsumerAnswer.
	Consume(transportID domain.TransportID, producerID domain.ProducerID, startPaused bool) (*ConsumeResult, error)
	ApplyConsumerAnswer(consumerID domain.ConsumerID, answerSDP string) error

	PauseProducer(id domain.ProducerID) error
	ResumeProducer(id domain.ProducerID) error
	PauseConsumer(id domain.ConsumerID) error
	ResumeConsumer(id domain.ConsumerID) error

	CloseProducer(id domain.ProducerID) error
	CloseConsumer(id domain.ConsumerID) error
	CloseTransport(id domain.TransportID) error
	CloseSession(sid SessionID)

	// Events streams producer/consumer/transport lifecycle notifications
	// and the fatal worker-died signal (§4.1, §4.8).
	Events() <-chan MediaEvent

	// ObserveSpeaking starts (if not already running) the shared
	// active-speaker observer and returns its event stream. threshold is
	// in dBFS, interval the sampling period (§5 defaults: -70dBFS, 800ms).
	ObserveSpeaking(threshold float64, interval time.Duration) <-chan SpeakingEvent

	Close()
}

type ConsumerState int

const (
	ConsumerNegotiating ConsumerState = iota
	ConsumerActive
	ConsumerPaused
	ConsumerClosed
)

type ConsumeResult struct {
	ConsumerID domain.ConsumerID
	OfferSDP   string
	Paused     bool
}
