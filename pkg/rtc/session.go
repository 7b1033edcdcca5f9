// Package rtc drives the offer/answer/candidate handshake that
// establishes the direct peer transport for live audio/video. It talks
// to the far side only through a signal.Transport; media never touches
// the relay.
package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pion/webrtc/v4"

	"github.com/dkarls/watchparty/pkg/signal"
)

var log = logging.Logger("rtc")

// DefaultICEServers is used when no TURN configuration is supplied.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// ICEConfig holds optional TURN overrides.
type ICEConfig struct {
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Servers expands the config into the ICE server list for the
// PeerConnection.
func (c ICEConfig) Servers() []webrtc.ICEServer {
	servers := DefaultICEServers
	if c.TURNServer != "" {
		servers = append([]webrtc.ICEServer{{
			URLs:       []string{c.TURNServer},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		}}, servers...)
	}
	return servers
}

// Configuration builds the PeerConnection configuration. ForceRelay
// restricts candidate gathering to TURN relays.
func (c ICEConfig) Configuration() webrtc.Configuration {
	cfg := webrtc.Configuration{ICEServers: c.Servers()}
	if c.ForceRelay {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}
	return cfg
}

// Config describes one call attempt.
type Config struct {
	RoomID    string
	Initiator bool
	ICE       ICEConfig
}

// signalMessage is the wire format on the negotiation room. Sender
// carries the session's token so echoes on looping channels are dropped.
type signalMessage struct {
	Type      string                     `json:"type"` // offer, answer, candidate
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Sender    string                     `json:"sender,omitempty"`
}

// Session is one negotiation attempt between the two room members.
// Exactly one side is the initiator. The session owns the
// PeerConnection and the local capture devices and releases both on
// Close.
type Session struct {
	roomID    string
	initiator bool
	transport signal.Transport
	token     string

	mu          sync.Mutex
	state       State
	pc          *webrtc.PeerConnection
	stopCapture func()
	cancelSub   func()
	pending     []webrtc.ICECandidateInit
	remoteSet   bool
	closed      bool

	states chan State
	tracks chan *webrtc.TrackRemote
}

// Start begins a call attempt on roomID. Media acquisition and the
// handshake run in the background; progress is reported on States and
// the first remote track on RemoteTracks.
func Start(transport signal.Transport, cfg Config) (*Session, error) {
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("rtc: room id required")
	}

	s := &Session{
		roomID:    cfg.RoomID,
		initiator: cfg.Initiator,
		transport: transport,
		token:     uuid.NewString(),
		state:     StateIdle,
		states:    make(chan State, 8),
		tracks:    make(chan *webrtc.TrackRemote, 4),
	}

	go s.run(cfg.ICE)
	return s, nil
}

// States reports every state transition. The channel is buffered; slow
// readers miss intermediate states, never the latest one read.
func (s *Session) States() <-chan State { return s.states }

// RemoteTracks delivers inbound remote media tracks as they arrive.
func (s *Session) RemoteTracks() <-chan *webrtc.TrackRemote { return s.tracks }

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.closed && st != StateClosed {
		s.mu.Unlock()
		return
	}
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	log.Debugf("session %s: state %s", s.roomID, st)
	select {
	case s.states <- st:
	default:
	}
}

// run acquires local media and drives the handshake. Every step after
// an awaited boundary re-checks the closed flag so a teardown issued
// mid-negotiation wins.
func (s *Session) run(ice ICEConfig) {
	s.setState(StateGatheringMedia)

	pc, stopCapture, err := newMediaPeerConnection(ice.Configuration())
	if err != nil {
		log.Errorf("session %s: peer connection: %v", s.roomID, err)
		s.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if stopCapture != nil {
			stopCapture()
		}
		pc.Close()
		return
	}
	s.pc = pc
	s.stopCapture = stopCapture
	s.mu.Unlock()

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		s.send(signalMessage{Type: "candidate", Candidate: &init})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Infof("session %s: remote track %s (%s)", s.roomID, track.ID(), track.Kind())
		s.setState(StateConnected)
		select {
		case s.tracks <- track:
		default:
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debugf("session %s: peer connection %s", s.roomID, state)
	})

	cancel, err := s.transport.Subscribe(s.roomID, s.handleSignal)
	if err != nil {
		log.Errorf("session %s: subscribe: %v", s.roomID, err)
		s.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancelSub = cancel
	s.mu.Unlock()

	if !s.initiator {
		s.setState(StateAwaitingOffer)
		return
	}

	s.setState(StateOffering)
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		log.Errorf("session %s: create offer: %v", s.roomID, err)
		s.Close()
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		log.Errorf("session %s: set local description: %v", s.roomID, err)
		s.Close()
		return
	}
	s.send(signalMessage{Type: "offer", Offer: &offer})
	s.setState(StateNegotiating)
}

// send relays a signaling message, tagging it with the session token.
// Failures are logged and dropped; the protocol tolerates loss.
func (s *Session) send(msg signalMessage) {
	msg.Sender = s.token
	if err := s.transport.Send(s.roomID, msg); err != nil {
		log.Warnf("session %s: send %s: %v", s.roomID, msg.Type, err)
	}
}

// handleSignal routes one inbound relay message. Messages that do not
// fit the current state are discarded without tearing the session down.
func (s *Session) handleSignal(raw json.RawMessage) {
	var msg signalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debugf("session %s: malformed signal: %v", s.roomID, err)
		return
	}
	if msg.Sender == s.token {
		return
	}

	switch msg.Type {
	case "offer":
		s.handleOffer(msg)
	case "answer":
		s.handleAnswer(msg)
	case "candidate":
		s.handleCandidate(msg)
	}
}

func (s *Session) handleOffer(msg signalMessage) {
	if msg.Offer == nil {
		return
	}

	s.mu.Lock()
	if s.closed || s.initiator {
		s.mu.Unlock()
		return
	}
	if s.remoteSet {
		// Renegotiation is not supported for this two-party design; a
		// second offer on the same room is out of protocol.
		s.mu.Unlock()
		log.Infof("session %s: ignoring offer while %s", s.roomID, s.state)
		return
	}
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.SetRemoteDescription(*msg.Offer); err != nil {
		log.Warnf("session %s: apply offer: %v", s.roomID, err)
		return
	}
	s.flushPending(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Warnf("session %s: create answer: %v", s.roomID, err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Warnf("session %s: set local description: %v", s.roomID, err)
		return
	}
	s.send(signalMessage{Type: "answer", Answer: &answer})
	s.setState(StateNegotiating)
}

func (s *Session) handleAnswer(msg signalMessage) {
	if msg.Answer == nil {
		return
	}

	s.mu.Lock()
	if s.closed || !s.initiator || s.remoteSet {
		s.mu.Unlock()
		return
	}
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.SetRemoteDescription(*msg.Answer); err != nil {
		log.Warnf("session %s: apply answer: %v", s.roomID, err)
		return
	}
	s.flushPending(pc)
}

// handleCandidate applies an inbound candidate, buffering it when the
// remote description does not exist yet. Candidates may legitimately
// arrive before the offer/answer exchange completes and are never
// dropped for ordering reasons.
func (s *Session) handleCandidate(msg signalMessage) {
	if msg.Candidate == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.remoteSet {
		s.pending = append(s.pending, *msg.Candidate)
		s.mu.Unlock()
		return
	}
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.AddICECandidate(*msg.Candidate); err != nil {
		log.Warnf("session %s: add candidate: %v", s.roomID, err)
	}
}

// flushPending marks the remote description present and applies every
// buffered candidate in arrival order.
func (s *Session) flushPending(pc *webrtc.PeerConnection) {
	s.mu.Lock()
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			log.Warnf("session %s: add buffered candidate: %v", s.roomID, err)
		}
	}
}

// Close tears the session down: it detaches from the relay, releases
// local capture devices, closes the peer transport and discards
// buffered candidates. Safe to call from any state, any number of
// times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancelSub
	stopCapture := s.stopCapture
	pc := s.pc
	s.pending = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopCapture != nil {
		stopCapture()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Debugf("session %s: close peer connection: %v", s.roomID, err)
		}
	}
	s.setState(StateClosed)
}
