// Package routing implements the Audio Routing Core (§4.7): the policy
// layer that reconciles the (producer, subscriber) consumer set against
// channel membership and the permission matrix, and translates the
// active-speaker observer's volume stream into clientSpeaking/
// clientStoppedSpeaking fan-out. Grounded on the teacher's RelayManager
// (internal/app/sfu/relay_manager.go) for the producer->subscribers
// bookkeeping shape, generalized from "everyone in the room" fan-out to
// the permission-gated fan-out §3 requires.
package routing

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/channel"
	"github.com/dkeye/intercom/internal/client"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
	"github.com/dkeye/intercom/internal/permission"
)

// Sink receives the events the routing core produces so the signaling
// layer can fan them out to sessions. Implementations must not block.
type Sink interface {
	ProducerOpened(subscriber domain.ClientID, channelID domain.ChannelID, producerID domain.ProducerID, owner domain.ClientID)
	ProducerClosed(subscriber domain.ClientID, producerID domain.ProducerID)
	ClientSpeaking(channelID domain.ChannelID, clientID domain.ClientID)
	ClientStoppedSpeaking(channelID domain.ChannelID, clientID domain.ClientID)
}

type producerEntry struct {
	owner     domain.ClientID
	channels  map[domain.ChannelID]struct{}
	consumers map[domain.ClientID]domain.ConsumerID
}

// Router owns the producer->subscribers routing table described in §5 as
// shared state, serialized behind its own mutex, separate from the
// Channel and Client registries it reads.
type Router struct {
	channels *channel.Registry
	clients  *client.Registry
	worker   core.MediaWorker
	sink     Sink

	holdOff time.Duration

	mu        sync.Mutex
	producers map[domain.ProducerID]*producerEntry
	// ownerProducers indexes a client's currently open producer, since
	// this substrate is one microphone/producer per client (§3: "one
	// producer per send transport per client that ever speaks").
	ownerProducers map[domain.ClientID]domain.ProducerID

	speakMu    sync.Mutex
	speaking   map[domain.ProducerID]*time.Timer
}

// New constructs a Router with no Sink attached yet; call SetSink once the
// signaling layer (which itself depends on the Router) has been built.
func New(channels *channel.Registry, clients *client.Registry, worker core.MediaWorker, holdOff time.Duration) *Router {
	return &Router{
		channels:       channels,
		clients:        clients,
		worker:         worker,
		holdOff:        holdOff,
		producers:      make(map[domain.ProducerID]*producerEntry),
		ownerProducers: make(map[domain.ClientID]domain.ProducerID),
		speaking:       make(map[domain.ProducerID]*time.Timer),
	}
}

// SetSink attaches the event sink. It must be called before the worker's
// event and speaking loops start draining.
func (r *Router) SetSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// RunEventLoop drains the Media Worker's event stream for the process
// lifetime. It should run in its own goroutine (§5: "one logical task for
// the Media Worker callback drain").
func (r *Router) RunEventLoop() {
	for ev := range r.worker.Events() {
		switch ev.Kind {
		case core.EventProducerClosed:
			r.onProducerGone(ev.ProducerID)
		case core.EventTransportClosed:
			// Handled explicitly by the signaling layer's disconnect path,
			// which already knows the owning client id; nothing to do here.
		case core.EventWorkerDied:
			log.Fatal().Str("module", "routing").Msg("media worker died, terminating")
		}
	}
}

// RunSpeakingLoop drains the active-speaker observer and applies the
// hold-off before emitting clientStoppedSpeaking (§4.7).
func (r *Router) RunSpeakingLoop(threshold float64, interval time.Duration) {
	for ev := range r.worker.ObserveSpeaking(threshold, interval) {
		r.mu.Lock()
		entry, ok := r.producers[ev.ProducerID]
		r.mu.Unlock()
		if !ok {
			continue
		}

		owner, err := r.clients.Get(entry.owner)
		if err != nil {
			continue
		}

		if ev.Silence {
			r.scheduleStopped(ev.ProducerID, &owner, entry)
			continue
		}

		r.cancelStopped(ev.ProducerID)
		for ch := range entry.channels {
			if permission.Allow(&owner, ch, domain.DirectionSpeak) {
				r.sink.ClientSpeaking(ch, owner.ID)
			}
		}
	}
}

func (r *Router) cancelStopped(id domain.ProducerID) {
	r.speakMu.Lock()
	defer r.speakMu.Unlock()
	if t, ok := r.speaking[id]; ok {
		t.Stop()
		delete(r.speaking, id)
	}
}

func (r *Router) scheduleStopped(id domain.ProducerID, owner *domain.Client, entry *producerEntry) {
	r.speakMu.Lock()
	defer r.speakMu.Unlock()
	if _, ok := r.speaking[id]; ok {
		return
	}
	r.speaking[id] = time.AfterFunc(r.holdOff, func() {
		r.speakMu.Lock()
		delete(r.speaking, id)
		r.speakMu.Unlock()

		for ch := range entry.channels {
			if permission.Allow(owner, ch, domain.DirectionSpeak) {
				r.sink.ClientStoppedSpeaking(ch, owner.ID)
			}
		}
	})
}

// OnProducerOpened registers producer under owner's currently speakable
// channels and creates every permitted consumer (§4.7).
func (r *Router) OnProducerOpened(owner domain.ClientID, producerID domain.ProducerID) error {
	c, err := r.clients.Get(owner)
	if err != nil {
		return err
	}

	channels := permission.SpeakableChannels(&c)
	entry := &producerEntry{owner: owner, channels: make(map[domain.ChannelID]struct{}), consumers: make(map[domain.ClientID]domain.ConsumerID)}
	for _, ch := range channels {
		entry.channels[ch] = struct{}{}
		_ = r.channels.AddProducer(ch, producerID)
	}

	r.mu.Lock()
	r.producers[producerID] = entry
	r.ownerProducers[owner] = producerID
	r.mu.Unlock()

	for _, ch := range channels {
		r.reconcileChannelForProducer(ch, producerID, entry)
	}
	return nil
}

// reconcileChannelForProducer creates consumers for every member of ch
// that currently has listen right there and lacks one.
func (r *Router) reconcileChannelForProducer(ch domain.ChannelID, producerID domain.ProducerID, entry *producerEntry) {
	members, err := r.channels.Members(ch)
	if err != nil {
		return
	}
	for _, subscriberID := range members {
		if subscriberID == entry.owner {
			continue
		}
		r.ensureConsumer(subscriberID, ch, producerID, entry)
	}
}

func (r *Router) ensureConsumer(subscriberID domain.ClientID, ch domain.ChannelID, producerID domain.ProducerID, entry *producerEntry) {
	r.mu.Lock()
	_, exists := entry.consumers[subscriberID]
	r.mu.Unlock()
	if exists {
		return
	}

	subscriber, err := r.clients.Get(subscriberID)
	if err != nil {
		return
	}
	if !permission.Allow(&subscriber, ch, domain.DirectionListen) {
		return
	}

	r.mu.Lock()
	entry.consumers[subscriberID] = "" // reservation, replaced below
	r.mu.Unlock()

	r.sink.ProducerOpened(subscriberID, ch, producerID, entry.owner)
}

// ConsumerCreated records the consumer id once the signaling layer has
// actually negotiated it with the Media Worker (Consume is driven by the
// subscriber's own consume request, not pushed by the router directly,
// since only the subscriber's session can perform the SDP exchange).
func (r *Router) ConsumerCreated(subscriberID domain.ClientID, producerID domain.ProducerID, consumerID domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.producers[producerID]; ok {
		entry.consumers[subscriberID] = consumerID
	}
}

// onProducerGone tears down every consumer for a producer the Media
// Worker itself closed (e.g. transport failure) and removes it from the
// channel registry's producer sets.
func (r *Router) onProducerGone(producerID domain.ProducerID) {
	r.mu.Lock()
	entry, ok := r.producers[producerID]
	if ok {
		delete(r.producers, producerID)
		if r.ownerProducers[entry.owner] == producerID {
			delete(r.ownerProducers, entry.owner)
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for ch := range entry.channels {
		_ = r.channels.RemoveProducer(ch, producerID)
	}
	for subscriberID, consumerID := range entry.consumers {
		if consumerID != "" {
			_ = r.worker.CloseConsumer(consumerID)
		}
		r.sink.ProducerClosed(subscriberID, producerID)
	}
	r.cancelStopped(producerID)
}

// CloseProducer closes owner's producer directly, e.g. on permission
// revocation or session close (§4.8).
func (r *Router) CloseProducer(producerID domain.ProducerID) {
	_ = r.worker.CloseProducer(producerID)
	r.onProducerGone(producerID)
}

// OwnerProducer returns the client's currently open producer, if any.
func (r *Router) OwnerProducer(owner domain.ClientID) (domain.ProducerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ownerProducers[owner]
	return id, ok
}

// ReconcileClientJoined creates consumers for a newly joined member
// against every producer already registered in ch (§4.7: "client joined
// channel" stream).
func (r *Router) ReconcileClientJoined(clientID domain.ClientID, ch domain.ChannelID) {
	r.mu.Lock()
	type pair struct {
		id    domain.ProducerID
		entry *producerEntry
	}
	var pairs []pair
	for id, entry := range r.producers {
		if _, ok := entry.channels[ch]; ok && entry.owner != clientID {
			pairs = append(pairs, pair{id, entry})
		}
	}
	r.mu.Unlock()

	for _, pr := range pairs {
		r.ensureConsumer(clientID, ch, pr.id, pr.entry)
	}
}

// ReconcileClientLeft closes clientID's consumers of producers registered
// in ch, and re-scopes clientID's own producer away from ch if it had
// one there.
func (r *Router) ReconcileClientLeft(clientID domain.ClientID, ch domain.ChannelID) {
	r.mu.Lock()
	var toClose []domain.ConsumerID
	for _, entry := range r.producers {
		if _, ok := entry.channels[ch]; !ok {
			continue
		}
		if cid, ok := entry.consumers[clientID]; ok {
			if cid != "" {
				toClose = append(toClose, cid)
			}
			delete(entry.consumers, clientID)
		}
	}
	r.mu.Unlock()

	for _, cid := range toClose {
		_ = r.worker.CloseConsumer(cid)
	}

	r.ReconcilePermissions(clientID)
}

// ReconcilePermissions recomputes clientID's producer's channel set and
// consumer subscriptions against its current permission matrix (§4.8:
// "permission revocation mid-call"). If the client no longer has speak
// right anywhere, its producer is closed entirely.
func (r *Router) ReconcilePermissions(clientID domain.ClientID) {
	c, err := r.clients.Get(clientID)
	if err != nil {
		return
	}

	if producerID, ok := r.OwnerProducer(clientID); ok {
		r.reconcileOwnedProducer(producerID, &c)
	}

	r.mu.Lock()
	type pair struct {
		id    domain.ProducerID
		entry *producerEntry
	}
	var pairs []pair
	for id, entry := range r.producers {
		if entry.owner == clientID {
			continue
		}
		pairs = append(pairs, pair{id, entry})
	}
	r.mu.Unlock()

	for _, pr := range pairs {
		r.reconcileSubscriberAgainst(clientID, &c, pr.id, pr.entry)
	}
}

func (r *Router) reconcileOwnedProducer(producerID domain.ProducerID, owner *domain.Client) {
	newChannels := permission.SpeakableChannels(owner)
	newSet := make(map[domain.ChannelID]struct{}, len(newChannels))
	for _, ch := range newChannels {
		newSet[ch] = struct{}{}
	}

	if len(newSet) == 0 {
		r.CloseProducer(producerID)
		return
	}

	r.mu.Lock()
	entry, ok := r.producers[producerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	var added, removed []domain.ChannelID
	for ch := range newSet {
		if _, ok := entry.channels[ch]; !ok {
			added = append(added, ch)
		}
	}
	for ch := range entry.channels {
		if _, ok := newSet[ch]; !ok {
			removed = append(removed, ch)
		}
	}
	entry.channels = newSet
	r.mu.Unlock()

	for _, ch := range removed {
		_ = r.channels.RemoveProducer(ch, producerID)
	}
	for _, ch := range added {
		_ = r.channels.AddProducer(ch, producerID)
		r.reconcileChannelForProducer(ch, producerID, entry)
	}
}

func (r *Router) reconcileSubscriberAgainst(subscriberID domain.ClientID, subscriber *domain.Client, producerID domain.ProducerID, entry *producerEntry) {
	stillAllowed := false
	for ch := range entry.channels {
		if permission.Allow(subscriber, ch, domain.DirectionListen) {
			stillAllowed = true
			r.ensureConsumer(subscriberID, ch, producerID, entry)
		}
	}

	if !stillAllowed {
		r.mu.Lock()
		cid, ok := entry.consumers[subscriberID]
		if ok {
			delete(entry.consumers, subscriberID)
		}
		r.mu.Unlock()
		if ok && cid != "" {
			_ = r.worker.CloseConsumer(cid)
			r.sink.ProducerClosed(subscriberID, producerID)
		}
	}
}
