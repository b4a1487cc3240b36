package media

import (
	"math"
	"testing"

	"github.com/pion/rtp"
)

func TestLevelFromPacketNoExtensionID(t *testing.T) {
	pkt := &rtp.Packet{}
	_, ok := levelFromPacket(pkt, 0)
	if ok {
		t.Fatal("expected no level when extensionID is 0 (not negotiated)")
	}
}

func TestLevelFromPacketDecodesOneByteLevel(t *testing.T) {
	const extID = 1
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Extension:        true,
			ExtensionProfile: rtp.ExtensionProfileOneByte,
		},
	}
	if err := pkt.SetExtension(extID, []byte{42}); err != nil {
		t.Fatalf("SetExtension: %v", err)
	}

	dBFS, ok := levelFromPacket(pkt, extID)
	if !ok {
		t.Fatal("expected a decoded level")
	}
	if dBFS != -42 {
		t.Fatalf("expected -42 dBov, got %v", dBFS)
	}
}

func TestLevelFromPacketMissingExtensionData(t *testing.T) {
	pkt := &rtp.Packet{}
	_, ok := levelFromPacket(pkt, 5)
	if ok {
		t.Fatal("expected no level when the packet carries no such extension")
	}
}

func TestRMSToDBFS(t *testing.T) {
	if got := rmsToDBFS(0); !math.IsInf(got, -1) {
		t.Fatalf("expected -Inf for rms<=0, got %v", got)
	}
	if got := rmsToDBFS(1); got != 0 {
		t.Fatalf("expected 0dBFS for rms=1, got %v", got)
	}
}
