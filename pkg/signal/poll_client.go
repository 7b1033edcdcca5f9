package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultPollInterval is how often PollTransport asks the relay for new
// messages.
const DefaultPollInterval = 500 * time.Millisecond

// PollTransport is the fallback binding: messages are posted to the
// relay's mailbox and fetched on a fixed interval with a monotonic
// high-water-mark cursor. The strict id > after comparison makes each
// message surface exactly once per client even when polls race.
type PollTransport struct {
	baseURL  string // http://host:port
	client   *http.Client
	interval time.Duration

	mu    sync.Mutex
	rooms map[string]*pollRoom
}

type pollRoom struct {
	mu       sync.Mutex
	after    int64
	handlers map[int]func(json.RawMessage)
	nextID   int
	done     chan struct{}
}

// NewPollTransport creates a poll transport against the relay at
// baseURL. A non-positive interval selects DefaultPollInterval.
func NewPollTransport(baseURL string, interval time.Duration) *PollTransport {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollTransport{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		rooms:    make(map[string]*pollRoom),
	}
}

// Send posts payload to the room's mailbox.
func (t *PollTransport) Send(roomID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	body, err := json.Marshal(PostRequest{RoomID: roomID, Message: raw})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := t.client.Post(t.baseURL+"/signaling", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to relay (room %s): %w", roomID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post to relay (room %s): status %d", roomID, resp.StatusCode)
	}
	return nil
}

// Subscribe attaches fn to the room's poller, starting it on first use.
// The last cancel for a room stops the poller.
func (t *PollTransport) Subscribe(roomID string, fn func(json.RawMessage)) (func(), error) {
	t.mu.Lock()
	room, ok := t.rooms[roomID]
	if !ok {
		room = &pollRoom{
			handlers: make(map[int]func(json.RawMessage)),
			done:     make(chan struct{}),
		}
		t.rooms[roomID] = room
		go t.pollLoop(roomID, room)
	}
	t.mu.Unlock()

	room.mu.Lock()
	id := room.nextID
	room.nextID++
	room.handlers[id] = fn
	room.mu.Unlock()

	return func() {
		room.mu.Lock()
		delete(room.handlers, id)
		empty := len(room.handlers) == 0
		room.mu.Unlock()
		if empty {
			t.stopRoom(roomID, room)
		}
	}, nil
}

func (t *PollTransport) stopRoom(roomID string, room *pollRoom) {
	t.mu.Lock()
	if t.rooms[roomID] == room {
		delete(t.rooms, roomID)
	}
	t.mu.Unlock()

	select {
	case <-room.done:
	default:
		close(room.done)
	}
}

func (t *PollTransport) pollLoop(roomID string, room *pollRoom) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-room.done:
			return
		case <-ticker.C:
			t.pollOnce(roomID, room)
		}
	}
}

// pollOnce fetches messages after the cursor and dispatches them. A
// transient fetch failure is logged and dropped; the next tick retries
// from the same cursor.
func (t *PollTransport) pollOnce(roomID string, room *pollRoom) {
	room.mu.Lock()
	after := room.after
	room.mu.Unlock()

	endpoint := fmt.Sprintf("%s/signaling?roomId=%s&after=%d",
		t.baseURL, url.QueryEscape(roomID), after)
	resp, err := t.client.Get(endpoint)
	if err != nil {
		log.Debugf("poll (room %s): %v", roomID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("poll (room %s): status %d", roomID, resp.StatusCode)
		io.Copy(io.Discard, resp.Body)
		return
	}

	var list ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		log.Debugf("poll decode (room %s): %v", roomID, err)
		return
	}

	for _, msg := range list.Messages {
		room.mu.Lock()
		// Cursor advancement is monotonic; a racing poll that already
		// surfaced this id wins and we skip it.
		if msg.ID <= room.after {
			room.mu.Unlock()
			continue
		}
		room.after = msg.ID
		handlers := make([]func(json.RawMessage), 0, len(room.handlers))
		for _, fn := range room.handlers {
			handlers = append(handlers, fn)
		}
		room.mu.Unlock()

		for _, fn := range handlers {
			fn(msg.Data)
		}
	}
}

// Close stops every room poller.
func (t *PollTransport) Close() {
	t.mu.Lock()
	rooms := make(map[string]*pollRoom, len(t.rooms))
	for id, room := range t.rooms {
		rooms[id] = room
	}
	t.rooms = make(map[string]*pollRoom)
	t.mu.Unlock()

	for _, room := range rooms {
		select {
		case <-room.done:
		default:
			close(room.done)
		}
	}
}
