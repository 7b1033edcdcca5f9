package signal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WSTransport is the push binding client: one live websocket per room,
// dialed on first use. The server forwards each frame to the other room
// member, so nothing sent here comes back on the same connection.
type WSTransport struct {
	baseURL string // ws://host:port or wss://host

	mu    sync.Mutex
	conns map[string]*wsRoomConn
}

type wsRoomConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu       sync.Mutex
	handlers map[int]func(json.RawMessage)
	nextID   int

	done   chan struct{}
	closed bool
}

// NewWSTransport creates a push transport against the relay at baseURL.
func NewWSTransport(baseURL string) *WSTransport {
	return &WSTransport{
		baseURL: baseURL,
		conns:   make(map[string]*wsRoomConn),
	}
}

func (t *WSTransport) roomConn(roomID string) (*wsRoomConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rc, ok := t.conns[roomID]; ok {
		return rc, nil
	}

	endpoint := fmt.Sprintf("%s/ws?roomId=%s", t.baseURL, url.QueryEscape(roomID))
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", endpoint, err)
	}

	rc := &wsRoomConn{
		conn:     conn,
		handlers: make(map[int]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	t.conns[roomID] = rc
	go t.readLoop(roomID, rc)
	return rc, nil
}

func (t *WSTransport) readLoop(roomID string, rc *wsRoomConn) {
	defer t.dropConn(roomID, rc)

	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			select {
			case <-rc.done:
			default:
				log.Warnf("relay read (room %s): %v", roomID, err)
			}
			return
		}

		rc.mu.Lock()
		handlers := make([]func(json.RawMessage), 0, len(rc.handlers))
		for _, fn := range rc.handlers {
			handlers = append(handlers, fn)
		}
		rc.mu.Unlock()

		for _, fn := range handlers {
			fn(json.RawMessage(data))
		}
	}
}

func (t *WSTransport) dropConn(roomID string, rc *wsRoomConn) {
	t.mu.Lock()
	if t.conns[roomID] == rc {
		delete(t.conns, roomID)
	}
	t.mu.Unlock()
	rc.close()
}

func (rc *wsRoomConn) close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.done)
	rc.conn.Close()
}

// Send writes payload as a JSON frame on the room's connection. A write
// failure is returned for logging; the caller does not retry.
func (t *WSTransport) Send(roomID string, payload any) error {
	rc, err := t.roomConn(roomID)
	if err != nil {
		return err
	}

	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if err := rc.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("relay send (room %s): %w", roomID, err)
	}
	return nil
}

// Subscribe attaches fn to the room's connection, dialing it if needed.
// The last cancel for a room closes the connection.
func (t *WSTransport) Subscribe(roomID string, fn func(json.RawMessage)) (func(), error) {
	rc, err := t.roomConn(roomID)
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	id := rc.nextID
	rc.nextID++
	rc.handlers[id] = fn
	rc.mu.Unlock()

	return func() {
		rc.mu.Lock()
		delete(rc.handlers, id)
		empty := len(rc.handlers) == 0
		rc.mu.Unlock()
		if empty {
			t.dropConn(roomID, rc)
		}
	}, nil
}

// Close tears down every room connection.
func (t *WSTransport) Close() {
	t.mu.Lock()
	conns := make([]*wsRoomConn, 0, len(t.conns))
	for _, rc := range t.conns {
		conns = append(conns, rc)
	}
	t.conns = make(map[string]*wsRoomConn)
	t.mu.Unlock()

	for _, rc := range conns {
		rc.close()
	}
}
