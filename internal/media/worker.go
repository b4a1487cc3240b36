// Package media implements core.MediaWorker on top of pion/webrtc/v4. It
// is grounded on the teacher's internal/adapters/rtc (offer/answer
// renegotiation per PeerConnection) and internal/app/sfu (RTP relay /
// active-speaker) packages, reworked around the Transport/Producer/
// Consumer handles §4.1 requires instead of the teacher's single implicit
// per-session connection.
package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

// Config carries the subset of §6's media settings the worker needs.
type Config struct {
	ListenIP     string
	AnnouncedIP  string
	PortMin      uint16
	PortMax      uint16
	ICEServers   []string
}

// Worker is the pion-backed MediaWorker. One Worker serves the whole
// process; every session's transports live inside it.
type Worker struct {
	cfg Config
	api *webrtc.API

	mu          sync.Mutex
	transports  map[domain.TransportID]*transport
	producers   map[domain.ProducerID]*producer
	consumers   map[domain.ConsumerID]*consumer

	events chan core.MediaEvent

	observerOnce sync.Once
	observer     *speakingObserver
}

type transport struct {
	id        domain.TransportID
	sid       core.SessionID
	dir       core.TransportDirection
	pc        *webrtc.PeerConnection
	connected bool
	closed    bool
}

type producer struct {
	id          domain.ProducerID
	transportID domain.TransportID
	sid         core.SessionID
	track       *webrtc.TrackRemote
	receiver    *webrtc.RTPReceiver
	levelExtID  uint8
	paused      bool
	closed      bool

	w *Worker

	mu        sync.RWMutex
	consumers map[domain.ConsumerID]*consumer
}

type consumer struct {
	id          domain.ConsumerID
	producerID  domain.ProducerID
	transportID domain.TransportID
	sid         core.SessionID
	localTrack  *webrtc.TrackLocalStaticRTP
	sender      *webrtc.RTPSender
	state       core.ConsumerState
}

// New constructs a Worker configured per §6's MEDIA_* environment keys.
func New(cfg Config) (*Worker, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1;usedtx=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}
	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: audioLevelExtensionURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register audio level extension: %w", err)
	}

	s := webrtc.SettingEngine{}
	if cfg.PortMin != 0 && cfg.PortMax != 0 {
		if err := s.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}
	if cfg.AnnouncedIP != "" {
		s.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	// ListenIP is not applied: pion binds its ephemeral UDP/TCP ports on
	// all interfaces, which matches the 0.0.0.0 default, and any other
	// ListenIP value has no effect on which interface is used.

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s))

	return &Worker{
		cfg:        cfg,
		api:        api,
		transports: make(map[domain.TransportID]*transport),
		producers:  make(map[domain.ProducerID]*producer),
		consumers:  make(map[domain.ConsumerID]*consumer),
		events:     make(chan core.MediaEvent, 256),
	}, nil
}

func (w *Worker) iceServers() []webrtc.ICEServer {
	if len(w.cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: w.cfg.ICEServers}}
}

func (w *Worker) RTPCapabilities() core.Capabilities {
	return core.Capabilities{
		Codecs: []core.CodecCapability{{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1;usedtx=1",
		}},
	}
}

func (w *Worker) CreateTransport(sid core.SessionID, dir core.TransportDirection) (*core.TransportParams, error) {
	pc, err := w.api.NewPeerConnection(webrtc.Configuration{ICEServers: w.iceServers()})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create peer connection")
	}

	id := domain.NewTransportID()
	t := &transport{id: id, sid: sid, dir: dir, pc: pc}

	w.mu.Lock()
	w.transports[id] = t
	w.mu.Unlock()

	w.wireTransport(t)

	return &core.TransportParams{ID: id, Direction: dir, ICEServers: w.cfg.ICEServers}, nil
}

func (w *Worker) wireTransport(t *transport) {
	t.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "media").Str("transport", string(t.id)).Str("ice_state", s.String()).Msg("ice state change")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateDisconnected {
			w.CloseTransport(t.id)
		}
	})

	t.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			log.Warn().Str("module", "media").Str("transport", string(t.id)).Msg("rejecting non-audio track")
			return
		}
		w.registerProducer(t, track, receiver)
	})
}

func (w *Worker) registerProducer(t *transport, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	id := domain.NewProducerID()
	p := &producer{
		id:          id,
		transportID: t.id,
		sid:         t.sid,
		track:       track,
		receiver:    receiver,
		levelExtID:  headerExtensionID(receiver),
		w:           w,
		consumers:   make(map[domain.ConsumerID]*consumer),
	}

	w.mu.Lock()
	w.producers[id] = p
	w.mu.Unlock()

	go p.forwardLoop()

	w.emit(core.MediaEvent{Kind: core.EventProducerOpened, SessionID: t.sid, TransportID: t.id, ProducerID: id})
}

// forwardLoop reads RTP from the remote track and fans it out to every
// attached consumer's local track, mirroring the teacher's Relay.loop.
func (p *producer) forwardLoop() {
	for {
		pkt, _, err := p.track.ReadRTP()
		if err != nil {
			p.mu.Lock()
			p.closed = true
			cs := make([]*consumer, 0, len(p.consumers))
			for _, c := range p.consumers {
				cs = append(cs, c)
			}
			p.mu.Unlock()
			for _, c := range cs {
				c.state = core.ConsumerClosed
			}
			return
		}

		p.w.mu.Lock()
		observer := p.w.observer
		p.w.mu.Unlock()
		if observer != nil {
			if level, ok := levelFromPacket(pkt, p.levelExtID); ok {
				observer.sample(p.id, level)
			}
		}

		p.mu.RLock()
		paused := p.paused
		snapshot := make([]*consumer, 0, len(p.consumers))
		for _, c := range p.consumers {
			snapshot = append(snapshot, c)
		}
		p.mu.RUnlock()

		if paused {
			continue
		}
		for _, c := range snapshot {
			if c.state != core.ConsumerActive {
				continue
			}
			if err := c.localTrack.WriteRTP(pkt); err != nil {
				log.Error().Err(err).Str("module", "media").Str("consumer", string(c.id)).Msg("write rtp failed")
			}
		}
	}
}

func (w *Worker) ConnectTransport(id domain.TransportID, offerSDP string) (string, error) {
	w.mu.Lock()
	t, ok := w.transports[id]
	w.mu.Unlock()
	if !ok {
		return "", apperr.New(apperr.NotFound, "unknown transport")
	}
	if t.closed {
		return "", apperr.New(apperr.Conflict, "transport already closed")
	}
	if t.connected {
		return "", apperr.New(apperr.Conflict, "transport already connected")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return "", apperr.Wrap(apperr.BadRequest, err, "invalid offer")
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "create answer")
	}

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "set local description")
	}
	<-gatherComplete

	t.connected = true
	return t.pc.LocalDescription().SDP, nil
}

func (w *Worker) Produce(transportID domain.TransportID, appData core.ProducerAppData) (domain.ProducerID, error) {
	// Producers for this substrate are created implicitly by OnTrack once
	// the client's media flows over an already-connected send transport;
	// Produce confirms the transport is fit to host one, then polls for up
	// to 5 seconds for that producer to appear.
	w.mu.Lock()
	t, ok := w.transports[transportID]
	w.mu.Unlock()
	if !ok {
		return "", apperr.New(apperr.NotFound, "unknown transport")
	}
	if t.closed {
		return "", apperr.New(apperr.Conflict, "transport already closed")
	}
	if !t.connected {
		return "", apperr.New(apperr.Conflict, "transport not connected")
	}
	if t.dir != core.TransportSend {
		return "", apperr.New(apperr.BadRequest, "not a send transport")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		for _, p := range w.producers {
			if p.transportID == transportID {
				id := p.id
				w.mu.Unlock()
				return id, nil
			}
		}
		w.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	return "", apperr.New(apperr.Timeout, "no track arrived on transport")
}

func (w *Worker) CanConsume(producerID domain.ProducerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.producers[producerID]
	return ok && !p.closed
}

func (w *Worker) Consume(transportID domain.TransportID, producerID domain.ProducerID, startPaused bool) (*core.ConsumeResult, error) {
	w.mu.Lock()
	t, tok := w.transports[transportID]
	p, pok := w.producers[producerID]
	w.mu.Unlock()
	if !tok {
		return nil, apperr.New(apperr.NotFound, "unknown transport")
	}
	if t.closed {
		return nil, apperr.New(apperr.Conflict, "transport already closed")
	}
	if !pok || p.closed {
		return nil, apperr.New(apperr.UnsupportedCodec, "producer unavailable")
	}
	if t.dir != core.TransportReceive {
		return nil, apperr.New(apperr.BadRequest, "not a receive transport")
	}

	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		string(producerID), string(p.sid))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create local track")
	}

	sender, err := t.pc.AddTrack(localTrack)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "add track")
	}
	go drainRTCP(sender)

	id := domain.NewConsumerID()
	state := core.ConsumerActive
	if startPaused {
		state = core.ConsumerPaused
	}
	c := &consumer{id: id, producerID: producerID, transportID: transportID, sid: t.sid, localTrack: localTrack, sender: sender, state: core.ConsumerNegotiating}

	w.mu.Lock()
	w.consumers[id] = c
	w.mu.Unlock()

	p.mu.Lock()
	p.consumers[id] = c
	p.mu.Unlock()

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create renegotiation offer")
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "set local description")
	}
	c.state = state

	return &core.ConsumeResult{ConsumerID: id, OfferSDP: t.pc.LocalDescription().SDP, Paused: startPaused}, nil
}

// headerExtensionID returns the negotiated id for audioLevelExtensionURI
// on receiver's codec parameters, or 0 if the remote never offered it.
func headerExtensionID(receiver *webrtc.RTPReceiver) uint8 {
	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == audioLevelExtensionURI {
			return uint8(ext.ID)
		}
	}
	return 0
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (w *Worker) ApplyConsumerAnswer(consumerID domain.ConsumerID, answerSDP string) error {
	w.mu.Lock()
	c, ok := w.consumers[consumerID]
	var t *transport
	if ok {
		t = w.transports[c.transportID]
	}
	w.mu.Unlock()
	if !ok || t == nil {
		return apperr.New(apperr.NotFound, "unknown consumer")
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "invalid answer")
	}
	return nil
}

func (w *Worker) PauseProducer(id domain.ProducerID) error {
	w.mu.Lock()
	p, ok := w.producers[id]
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown producer")
	}
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	return nil
}

func (w *Worker) ResumeProducer(id domain.ProducerID) error {
	w.mu.Lock()
	p, ok := w.producers[id]
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown producer")
	}
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	return nil
}

func (w *Worker) PauseConsumer(id domain.ConsumerID) error {
	w.mu.Lock()
	c, ok := w.consumers[id]
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown consumer")
	}
	c.state = core.ConsumerPaused
	return nil
}

func (w *Worker) ResumeConsumer(id domain.ConsumerID) error {
	w.mu.Lock()
	c, ok := w.consumers[id]
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown consumer")
	}
	c.state = core.ConsumerActive
	return nil
}

func (w *Worker) CloseProducer(id domain.ProducerID) error {
	w.mu.Lock()
	p, ok := w.producers[id]
	if ok {
		delete(w.producers, id)
	}
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown producer")
	}

	p.mu.Lock()
	p.closed = true
	cs := make([]*consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		cs = append(cs, c)
	}
	p.mu.Unlock()

	for _, c := range cs {
		w.closeConsumerLocked(c)
	}
	if p.receiver != nil {
		_ = p.receiver.Stop()
	}

	w.emit(core.MediaEvent{Kind: core.EventProducerClosed, SessionID: p.sid, TransportID: p.transportID, ProducerID: id})
	return nil
}

func (w *Worker) CloseConsumer(id domain.ConsumerID) error {
	w.mu.Lock()
	c, ok := w.consumers[id]
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown consumer")
	}
	w.closeConsumerLocked(c)
	return nil
}

func (w *Worker) closeConsumerLocked(c *consumer) {
	w.mu.Lock()
	delete(w.consumers, c.id)
	w.mu.Unlock()

	c.state = core.ConsumerClosed
	if c.sender != nil {
		_ = c.sender.Stop()
	}

	w.mu.Lock()
	p, ok := w.producers[c.producerID]
	w.mu.Unlock()
	if ok {
		p.mu.Lock()
		delete(p.consumers, c.id)
		p.mu.Unlock()
	}

	w.emit(core.MediaEvent{Kind: core.EventConsumerClosed, SessionID: c.sid, TransportID: c.transportID, ConsumerID: c.id})
}

// CloseTransport tears down transport id. The record is kept in place with
// closed set rather than deleted, so a later call against the same id can
// be told apart from one that never existed (§8: closing never leaks a
// NotFound into what should be a Conflict).
func (w *Worker) CloseTransport(id domain.TransportID) error {
	w.mu.Lock()
	t, ok := w.transports[id]
	if ok {
		if t.closed {
			w.mu.Unlock()
			return apperr.New(apperr.Conflict, "transport already closed")
		}
		t.closed = true
	}
	w.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "unknown transport")
	}

	w.mu.Lock()
	var toClose []domain.ProducerID
	for pid, p := range w.producers {
		if p.transportID == id {
			toClose = append(toClose, pid)
		}
	}
	var consumersToClose []domain.ConsumerID
	for cid, c := range w.consumers {
		if c.transportID == id {
			consumersToClose = append(consumersToClose, cid)
		}
	}
	w.mu.Unlock()

	for _, pid := range toClose {
		_ = w.CloseProducer(pid)
	}
	for _, cid := range consumersToClose {
		_ = w.CloseConsumer(cid)
	}

	_ = t.pc.Close()
	w.emit(core.MediaEvent{Kind: core.EventTransportClosed, SessionID: t.sid, TransportID: id})
	return nil
}

func (w *Worker) CloseSession(sid core.SessionID) {
	w.mu.Lock()
	var ids []domain.TransportID
	for id, t := range w.transports {
		if t.sid == sid {
			ids = append(ids, id)
		}
	}
	w.mu.Unlock()

	for _, id := range ids {
		_ = w.CloseTransport(id)
	}
}

func (w *Worker) Events() <-chan core.MediaEvent {
	return w.events
}

func (w *Worker) emit(ev core.MediaEvent) {
	select {
	case w.events <- ev:
	default:
		log.Warn().Str("module", "media").Msg("event channel full, dropping event")
	}
}

func (w *Worker) ObserveSpeaking(threshold float64, interval time.Duration) <-chan core.SpeakingEvent {
	w.observerOnce.Do(func() {
		o := newSpeakingObserver(w, threshold, interval)
		w.mu.Lock()
		w.observer = o
		w.mu.Unlock()
		go o.run()
	})
	w.mu.Lock()
	o := w.observer
	w.mu.Unlock()
	return o.out
}

func (w *Worker) Close() {
	w.mu.Lock()
	ids := make([]domain.TransportID, 0, len(w.transports))
	for id := range w.transports {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		_ = w.CloseTransport(id)
	}
	close(w.events)
}
