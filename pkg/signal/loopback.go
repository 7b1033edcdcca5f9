package signal

import (
	"encoding/json"
	"sync"
)

// Loopback is an in-process transport: every payload is delivered
// synchronously to every subscriber of the room, including subscribers
// registered by the sender. Engines rely on their sender token to drop
// their own echoes, which makes Loopback a faithful stand-in for the
// same-process channel variant and a convenient test double.
type Loopback struct {
	mu     sync.RWMutex
	rooms  map[string]map[int]func(json.RawMessage)
	nextID int
}

// NewLoopback creates an empty in-process transport.
func NewLoopback() *Loopback {
	return &Loopback{rooms: make(map[string]map[int]func(json.RawMessage))}
}

// Send delivers payload to all current subscribers of the room.
func (l *Loopback) Send(roomID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	l.mu.RLock()
	handlers := make([]func(json.RawMessage), 0, len(l.rooms[roomID]))
	for _, fn := range l.rooms[roomID] {
		handlers = append(handlers, fn)
	}
	l.mu.RUnlock()

	for _, fn := range handlers {
		fn(data)
	}
	return nil
}

// Subscribe registers fn for the room.
func (l *Loopback) Subscribe(roomID string, fn func(json.RawMessage)) (func(), error) {
	l.mu.Lock()
	if l.rooms[roomID] == nil {
		l.rooms[roomID] = make(map[int]func(json.RawMessage))
	}
	id := l.nextID
	l.nextID++
	l.rooms[roomID][id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.rooms[roomID], id)
		if len(l.rooms[roomID]) == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}, nil
}
