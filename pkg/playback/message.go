package playback

// Message kinds mirrored between the two players. Every control message
// carries an absolute position, never a delta: a lost message causes
// bounded drift that the next message corrects.
const (
	TypeFile  = "file" // replace the player source; does not auto-play
	TypePlay  = "play"
	TypePause = "pause"
	TypeSeek  = "seek"
)

// Message is the wire format on the sync room. Sender is a random
// per-session token so a sender drops its own broadcast echoes on
// channels that loop back.
type Message struct {
	Type        string  `json:"type"`
	DataURL     string  `json:"dataUrl,omitempty"`
	CurrentTime float64 `json:"currentTime,omitempty"`
	Sender      string  `json:"sender,omitempty"`
}
