package domain

// Channel is the sanitized, storage-agnostic view of a channel: id, name,
// description. Membership and producer sets live in the channel registry,
// never here — a Channel value is safe to hand to a client over the wire.
type Channel struct {
	ID          ChannelID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// ChannelSnapshot adds the counts an API response needs without leaking
// the registry's internal sets.
type ChannelSnapshot struct {
	Channel
	MemberCount   int `json:"memberCount"`
	ProducerCount int `json:"producerCount"`
}
