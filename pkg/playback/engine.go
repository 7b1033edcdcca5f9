// Package playback keeps two independently rendered video players at
// matching position and run state. Each side broadcasts its local user
// intents over the relay; receiving a message applies it to the local
// player and never re-broadcasts, so no feedback loop can form.
package playback

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/dkarls/watchparty/pkg/signal"
)

var log = logging.Logger("playback")

// Player is the local video player the UI layer supplies. Seek and the
// state setters must be cheap; the engine calls them from the transport
// goroutine.
type Player interface {
	Load(src string)
	Play()
	Pause()
	Seek(position float64)
	Position() float64
	IsPlaying() bool
}

// Engine mirrors one player's state onto the far side and applies the
// far side's intents locally.
type Engine struct {
	player    Player
	transport signal.Transport
	roomID    string
	token     string
	cancelSub func()

	sources chan string
}

// NewEngine attaches the sync protocol for player on roomID and starts
// listening for remote intents.
func NewEngine(transport signal.Transport, roomID string, player Player) (*Engine, error) {
	e := &Engine{
		player:    player,
		transport: transport,
		roomID:    roomID,
		token:     uuid.NewString(),
		sources:   make(chan string, 4),
	}

	cancel, err := transport.Subscribe(roomID, e.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("playback: subscribe %s: %w", roomID, err)
	}
	e.cancelSub = cancel
	return e, nil
}

// RemoteSources delivers the source reference each time the far side
// loads a new file.
func (e *Engine) RemoteSources() <-chan string { return e.sources }

// BroadcastLoad announces a newly selected local file. The far side
// loads it and waits; nothing starts playing.
func (e *Engine) BroadcastLoad(src string) {
	e.send(Message{Type: TypeFile, DataURL: src})
}

// BroadcastPlay announces that the local user pressed play.
func (e *Engine) BroadcastPlay() {
	e.send(Message{Type: TypePlay, CurrentTime: e.player.Position()})
}

// BroadcastPause announces that the local user pressed pause.
func (e *Engine) BroadcastPause() {
	e.send(Message{Type: TypePause, CurrentTime: e.player.Position()})
}

// BroadcastSeek announces that the local user seeked to position.
func (e *Engine) BroadcastSeek(position float64) {
	e.send(Message{Type: TypeSeek, CurrentTime: position})
}

// send is best-effort: a lost message self-corrects on the next one
// because every message asserts absolute state.
func (e *Engine) send(msg Message) {
	msg.Sender = e.token
	if err := e.transport.Send(e.roomID, msg); err != nil {
		log.Warnf("sync send %s: %v", msg.Type, err)
	}
}

// handleMessage applies one remote intent to the local player. Local
// user actions are the only trigger for sending, so nothing here
// broadcasts.
func (e *Engine) handleMessage(raw json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debugf("malformed sync message: %v", err)
		return
	}
	if msg.Sender == e.token {
		return
	}

	switch msg.Type {
	case TypeFile:
		if msg.DataURL == "" {
			return
		}
		e.player.Load(msg.DataURL)
		select {
		case e.sources <- msg.DataURL:
		default:
		}
	case TypePlay:
		e.seekTo(msg.CurrentTime)
		e.player.Play()
	case TypePause:
		e.seekTo(msg.CurrentTime)
		e.player.Pause()
	case TypeSeek:
		// Run state stays whatever it was.
		e.player.Seek(msg.CurrentTime)
	}
}

func (e *Engine) seekTo(position float64) {
	if e.player.Position() != position {
		e.player.Seek(position)
	}
}

// Close detaches the engine from the relay. The player is left in its
// current state.
func (e *Engine) Close() {
	if e.cancelSub != nil {
		e.cancelSub()
		e.cancelSub = nil
	}
}
