// Package permission implements the Permission Evaluator (§4.4): a pure
// function over (client, channel, direction) with no side effects and no
// dependency on the registries themselves, so the Signaling Layer can call
// it before ever touching the Media Worker.
package permission

import "github.com/dkeye/intercom/internal/domain"

// Allow reports whether client has direction's right in channel ch. Per
// §3, either right additionally requires channel membership; per §4.4 the
// evaluator never consults mute/volume, only the permission matrix and
// membership.
func Allow(client *domain.Client, ch domain.ChannelID, dir domain.Direction) bool {
	if !client.IsMember(ch) {
		return false
	}
	switch dir {
	case domain.DirectionSpeak:
		return client.Permissions.SpeakToAll || client.Permissions.SpeakTo[ch]
	case domain.DirectionListen:
		return client.Permissions.ListenToAll || client.Permissions.ListenTo[ch]
	default:
		return false
	}
}

// SpeakableChannels returns every channel in client.Channels where it
// currently has speak right (§3: "producer ... registered into every such
// channel").
func SpeakableChannels(client *domain.Client) []domain.ChannelID {
	var out []domain.ChannelID
	for _, ch := range client.Channels {
		if Allow(client, ch, domain.DirectionSpeak) {
			out = append(out, ch)
		}
	}
	return out
}
