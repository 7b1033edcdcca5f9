package rtc

// State is the lifecycle of one negotiation session.
type State int

const (
	StateIdle State = iota
	StateGatheringMedia
	StateOffering      // initiator: local description sent, awaiting answer
	StateAwaitingOffer // responder: waiting for the initiator's offer
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGatheringMedia:
		return "gathering-media"
	case StateOffering:
		return "offering"
	case StateAwaitingOffer:
		return "awaiting-offer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UserVisible collapses the internal states onto the small enum the UI
// layer renders: connecting, connected or closed.
func (s State) UserVisible() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "connecting"
	}
}
