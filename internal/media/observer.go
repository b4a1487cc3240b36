package media

import (
	"math"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/domain"
)

// audioLevelExtensionURI is the RFC 6464 client-to-mixer audio level
// header extension clients are expected to negotiate; its one-byte
// payload encodes 0 (loudest) to 127 (silence) in -dBov.
const audioLevelExtensionURI = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"

// speakingObserver is the single shared active-speaker observer (§4.1:
// "single observer shared by all channels"). It samples the most recent
// audio level reported by every live producer on a fixed tick and emits
// one SpeakingEvent per producer per tick; an event that finds the output
// buffer full is dropped.
type speakingObserver struct {
	w         *Worker
	threshold float64
	interval  time.Duration
	out       chan core.SpeakingEvent

	mu     sync.Mutex
	levels map[domain.ProducerID]float64
}

func newSpeakingObserver(w *Worker, threshold float64, interval time.Duration) *speakingObserver {
	o := &speakingObserver{
		w:         w,
		threshold: threshold,
		interval:  interval,
		out:       make(chan core.SpeakingEvent, 64),
		levels:    make(map[domain.ProducerID]float64),
	}
	return o
}

// sample records the latest decoded level for a producer, called from the
// RTCP/RTP read path as packets arrive; see producer.forwardLoop.
func (o *speakingObserver) sample(id domain.ProducerID, dBFS float64) {
	o.mu.Lock()
	o.levels[id] = dBFS
	o.mu.Unlock()
}

func (o *speakingObserver) run() {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for range ticker.C {
		o.w.mu.Lock()
		ids := make([]domain.ProducerID, 0, len(o.w.producers))
		for id, p := range o.w.producers {
			if !p.closed {
				ids = append(ids, id)
			}
		}
		o.w.mu.Unlock()

		p := pool.New().WithMaxGoroutines(8)
		results := make(chan core.SpeakingEvent, len(ids))
		for _, id := range ids {
			id := id
			p.Go(func() {
				o.mu.Lock()
				level, ok := o.levels[id]
				o.mu.Unlock()
				if !ok {
					results <- core.SpeakingEvent{ProducerID: id, Silence: true}
					return
				}
				results <- core.SpeakingEvent{ProducerID: id, Volume: level, Silence: level < o.threshold}
			})
		}
		p.Wait()
		close(results)
		for ev := range results {
			select {
			case o.out <- ev:
			default:
			}
		}
	}
}

// levelFromPacket extracts the RFC 6464 one-byte audio level extension
// from pkt, if present, and converts it to an approximate dBFS value.
// extensionID is the negotiated id for audioLevelExtensionURI on this
// PeerConnection (0 when not negotiated, in which case level is assumed
// silent and the caller should not call sample at all).
func levelFromPacket(pkt *rtp.Packet, extensionID uint8) (dBFS float64, ok bool) {
	if extensionID == 0 {
		return 0, false
	}
	payload := pkt.GetExtension(extensionID)
	if len(payload) == 0 {
		return 0, false
	}
	// Low 7 bits: 0 (loudest) .. 127 (silence), per RFC 6464 §3.
	level := payload[0] & 0x7f
	return -float64(level), true
}

// rmsToDBFS is kept for producers/tests that compute level from raw PCM
// rather than the wire extension (e.g. a decoded reference signal in a
// test double), mirroring the threshold unit the worker otherwise reads
// straight off the wire.
func rmsToDBFS(rms float64) float64 {
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
