package rtc

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarls/watchparty/pkg/signal"
)

// Media acquisition has no devices to find in CI, so sessions fall back
// to receive-only transceivers; the handshake itself is unaffected.

const handshakeTimeout = 15 * time.Second

// negotiated reports whether the session got past the offer/answer
// exchange. Connected counts: on machines with capture devices media
// can start flowing before the assertion runs.
func negotiated(s *Session) bool {
	st := s.State()
	return st == StateNegotiating || st == StateConnected
}

func TestHandshakeOverLoopback(t *testing.T) {
	lb := signal.NewLoopback()

	responder, err := Start(lb, Config{RoomID: "movie-night", Initiator: false})
	require.NoError(t, err)
	defer responder.Close()

	require.Eventually(t, func() bool {
		return responder.State() == StateAwaitingOffer
	}, handshakeTimeout, 20*time.Millisecond)

	initiator, err := Start(lb, Config{RoomID: "movie-night", Initiator: true})
	require.NoError(t, err)
	defer initiator.Close()

	require.Eventually(t, func() bool {
		return negotiated(initiator) && negotiated(responder)
	}, handshakeTimeout, 20*time.Millisecond)
}

// collectSignals records every message of the given type seen on the room.
type signalCollector struct {
	mu   sync.Mutex
	msgs []signalMessage
}

func (c *signalCollector) handle(raw json.RawMessage) {
	var msg signalMessage
	if json.Unmarshal(raw, &msg) != nil {
		return
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *signalCollector) countType(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, msg := range c.msgs {
		if msg.Type == kind {
			n++
		}
	}
	return n
}

// remoteOffer builds a real offer from a bare PeerConnection standing in
// for the far peer.
func remoteOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return pc, offer
}

func TestCandidateBeforeOfferIsBuffered(t *testing.T) {
	lb := signal.NewLoopback()

	responder, err := Start(lb, Config{RoomID: "movie-night", Initiator: false})
	require.NoError(t, err)
	defer responder.Close()

	require.Eventually(t, func() bool {
		return responder.State() == StateAwaitingOffer
	}, handshakeTimeout, 20*time.Millisecond)

	var seen signalCollector
	cancel, err := lb.Subscribe("movie-night", seen.handle)
	require.NoError(t, err)
	defer cancel()

	// Candidate arrives before the offer; the responder must hold it
	// rather than drop it, and still answer once the offer lands.
	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host",
	}
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "candidate", Candidate: &candidate, Sender: "far-peer",
	}))

	_, offer := remoteOffer(t)
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "offer", Offer: &offer, Sender: "far-peer",
	}))

	require.Eventually(t, func() bool {
		return seen.countType("answer") == 1
	}, handshakeTimeout, 20*time.Millisecond)
	assert.True(t, negotiated(responder))

	responder.mu.Lock()
	assert.Empty(t, responder.pending)
	assert.True(t, responder.remoteSet)
	responder.mu.Unlock()
}

func TestSecondOfferIgnored(t *testing.T) {
	lb := signal.NewLoopback()

	responder, err := Start(lb, Config{RoomID: "movie-night", Initiator: false})
	require.NoError(t, err)
	defer responder.Close()

	require.Eventually(t, func() bool {
		return responder.State() == StateAwaitingOffer
	}, handshakeTimeout, 20*time.Millisecond)

	var seen signalCollector
	cancel, err := lb.Subscribe("movie-night", seen.handle)
	require.NoError(t, err)
	defer cancel()

	_, offer := remoteOffer(t)
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "offer", Offer: &offer, Sender: "far-peer",
	}))
	require.Eventually(t, func() bool {
		return seen.countType("answer") == 1
	}, handshakeTimeout, 20*time.Millisecond)

	_, second := remoteOffer(t)
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "offer", Offer: &second, Sender: "far-peer",
	}))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, seen.countType("answer"))
}

func TestOwnMessagesIgnored(t *testing.T) {
	lb := signal.NewLoopback()

	responder, err := Start(lb, Config{RoomID: "movie-night", Initiator: false})
	require.NoError(t, err)
	defer responder.Close()

	require.Eventually(t, func() bool {
		return responder.State() == StateAwaitingOffer
	}, handshakeTimeout, 20*time.Millisecond)

	// An offer tagged with the session's own token must not be answered.
	_, offer := remoteOffer(t)
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "offer", Offer: &offer, Sender: responder.token,
	}))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateAwaitingOffer, responder.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	lb := signal.NewLoopback()

	s, err := Start(lb, Config{RoomID: "movie-night", Initiator: true})
	require.NoError(t, err)

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())

	// Signals after Close are discarded without waking anything up.
	_, offer := remoteOffer(t)
	require.NoError(t, lb.Send("movie-night", signalMessage{
		Type: "offer", Offer: &offer, Sender: "far-peer",
	}))
	assert.Equal(t, StateClosed, s.State())
}

func TestStartRequiresRoomID(t *testing.T) {
	_, err := Start(signal.NewLoopback(), Config{})
	assert.Error(t, err)
}

func TestICEConfigServers(t *testing.T) {
	assert.Equal(t, DefaultICEServers, ICEConfig{}.Servers())

	servers := ICEConfig{
		TURNServer: "turn:turn.example.com:3478",
		TURNUser:   "alice",
		TURNPass:   "secret",
	}.Servers()
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, "alice", servers[0].Username)
}

func TestICEConfigForceRelay(t *testing.T) {
	assert.Equal(t, webrtc.ICETransportPolicyAll, ICEConfig{}.Configuration().ICETransportPolicy)
	assert.Equal(t, webrtc.ICETransportPolicyRelay, ICEConfig{ForceRelay: true}.Configuration().ICETransportPolicy)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "negotiating", StateNegotiating.String())
	assert.Equal(t, "connecting", StateOffering.UserVisible())
	assert.Equal(t, "connected", StateConnected.UserVisible())
	assert.Equal(t, "closed", StateClosed.UserVisible())
}
