// Package domain contains entities and value types, without logic that
// touches transport, storage, or signaling. It mirrors the shape of the
// wire protocol and the registries, but owns no mutexes and no maps.
package domain

import "github.com/google/uuid"

type (
	ChannelID     string
	ClientID      string
	SessionToken  string
	TransportID   string
	ProducerID    string
	ConsumerID    string
)

// SystemChannelID is the id of the one channel that always exists and can
// never be deleted (§3).
const SystemChannelID ChannelID = "system"

func NewChannelID() ChannelID    { return ChannelID(uuid.NewString()) }
func NewClientID() ClientID      { return ClientID(uuid.NewString()) }
func NewSessionToken() SessionToken { return SessionToken(uuid.NewString()) }
func NewTransportID() TransportID { return TransportID(uuid.NewString()) }
func NewProducerID() ProducerID  { return ProducerID(uuid.NewString()) }
func NewConsumerID() ConsumerID  { return ConsumerID(uuid.NewString()) }
