// Package channel implements the Channel Registry (§4.2): an in-memory
// map of channel id to channel record, with a single mutex serializing all
// mutations, grounded on the teacher's internal/app registry.go
// single-writer map pattern.
package channel

import (
	"sort"
	"sync"

	"github.com/dkeye/intercom/internal/apperr"
	"github.com/dkeye/intercom/internal/domain"
)

// SystemChannelName is the display name of the protected system channel
// created at startup (§3: "at least one system channel always exists").
const SystemChannelName = "system"

type record struct {
	channel   domain.Channel
	members   map[domain.ClientID]struct{}
	producers map[domain.ProducerID]struct{}
}

// Registry is the Channel Registry. The zero value is not usable; use New.
type Registry struct {
	mu       sync.Mutex
	channels map[domain.ChannelID]*record
}

// New constructs a Registry seeded with the protected system channel.
func New() *Registry {
	r := &Registry{channels: make(map[domain.ChannelID]*record)}
	r.channels[domain.SystemChannelID] = &record{
		channel: domain.Channel{
			ID:   domain.SystemChannelID,
			Name: SystemChannelName,
		},
		members:   make(map[domain.ClientID]struct{}),
		producers: make(map[domain.ProducerID]struct{}),
	}
	return r
}

// Create adds a new channel with a freshly minted id.
func (r *Registry) Create(name, description string) (domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.channels {
		if rec.channel.Name == name {
			return domain.Channel{}, apperr.New(apperr.Conflict, "channel name already in use")
		}
	}

	ch := domain.Channel{ID: domain.NewChannelID(), Name: name, Description: description}
	r.channels[ch.ID] = &record{
		channel:   ch,
		members:   make(map[domain.ClientID]struct{}),
		producers: make(map[domain.ProducerID]struct{}),
	}
	return ch, nil
}

// UpdateMetadata changes name/description in place; empty strings leave the
// existing value untouched.
func (r *Registry) UpdateMetadata(id domain.ChannelID, name, description string) (domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return domain.Channel{}, apperr.New(apperr.NotFound, "unknown channel")
	}
	if name != "" {
		rec.channel.Name = name
	}
	if description != "" {
		rec.channel.Description = description
	}
	return rec.channel, nil
}

// Delete removes a channel. The system channel can never be deleted (§3,
// §8 S4).
func (r *Registry) Delete(id domain.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == domain.SystemChannelID {
		return apperr.New(apperr.Conflict, "system channel is protected")
	}
	if _, ok := r.channels[id]; !ok {
		return apperr.New(apperr.NotFound, "unknown channel")
	}
	delete(r.channels, id)
	return nil
}

// AddMember records a client as a member of channel id. Idempotent.
func (r *Registry) AddMember(id domain.ChannelID, client domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown channel")
	}
	rec.members[client] = struct{}{}
	return nil
}

// RemoveMember drops a client from channel id's member set. Idempotent.
func (r *Registry) RemoveMember(id domain.ChannelID, client domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown channel")
	}
	delete(rec.members, client)
	return nil
}

// AddProducer registers a producer into channel id's producers set (§3:
// "a channel's producers set is the union of producers whose owners have
// speak in it and are members").
func (r *Registry) AddProducer(id domain.ChannelID, producer domain.ProducerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown channel")
	}
	rec.producers[producer] = struct{}{}
	return nil
}

// RemoveProducer drops a producer from channel id's producers set.
// Idempotent, so a cascade-close can call it unconditionally.
func (r *Registry) RemoveProducer(id domain.ChannelID, producer domain.ProducerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return apperr.New(apperr.NotFound, "unknown channel")
	}
	delete(rec.producers, producer)
	return nil
}

// Get returns the sanitized snapshot of one channel.
func (r *Registry) Get(id domain.ChannelID) (domain.ChannelSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return domain.ChannelSnapshot{}, apperr.New(apperr.NotFound, "unknown channel")
	}
	return snapshotOf(rec), nil
}

// List returns sanitized snapshots of every channel, ordered by id for a
// stable listing.
func (r *Registry) List() []domain.ChannelSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ChannelSnapshot, 0, len(r.channels))
	for _, rec := range r.channels {
		out = append(out, snapshotOf(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Members returns a copy of channel id's member id set.
func (r *Registry) Members(id domain.ChannelID) ([]domain.ClientID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown channel")
	}
	out := make([]domain.ClientID, 0, len(rec.members))
	for c := range rec.members {
		out = append(out, c)
	}
	return out, nil
}

// Producers returns a copy of channel id's producer id set, used by callers
// that must close out a channel's producers before tearing it down.
func (r *Registry) Producers(id domain.ChannelID) ([]domain.ProducerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.channels[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown channel")
	}
	out := make([]domain.ProducerID, 0, len(rec.producers))
	for p := range rec.producers {
		out = append(out, p)
	}
	return out, nil
}

// Exists reports whether id names a live channel, without taking the
// error-return path lookups need.
func (r *Registry) Exists(id domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[id]
	return ok
}

func snapshotOf(rec *record) domain.ChannelSnapshot {
	return domain.ChannelSnapshot{
		Channel:       rec.channel,
		MemberCount:   len(rec.members),
		ProducerCount: len(rec.producers),
	}
}
