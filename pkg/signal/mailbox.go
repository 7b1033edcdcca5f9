package signal

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultMailboxTTL is how long an idle poll-binding room is retained
// before the sweeper drops it.
const DefaultMailboxTTL = 10 * time.Minute

// sweepInterval is how often the sweeper scans for expired rooms.
const sweepInterval = time.Minute

// Mailbox is the store for the poll binding: a per-room ordered message
// sequence with server-assigned, strictly increasing IDs. Appends and
// reads are safe under concurrent posting and polling clients.
type Mailbox struct {
	mu    sync.Mutex
	rooms map[string]*mailboxRoom
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

type mailboxRoom struct {
	nextID  int64
	msgs    []StoredMessage
	touched time.Time
}

// NewMailbox creates a mailbox whose idle rooms expire after ttl.
// A zero ttl selects DefaultMailboxTTL.
func NewMailbox(ttl time.Duration) *Mailbox {
	if ttl <= 0 {
		ttl = DefaultMailboxTTL
	}
	m := &Mailbox{
		rooms: make(map[string]*mailboxRoom),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Post appends a message to the room's sequence, creating the room on
// first use, and returns the assigned ID.
func (m *Mailbox) Post(roomID string, data json.RawMessage) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		room = &mailboxRoom{}
		m.rooms[roomID] = room
	}

	room.nextID++
	room.touched = time.Now()
	msg := StoredMessage{ID: room.nextID, Data: data}
	room.msgs = append(room.msgs, msg)
	return msg.ID
}

// List returns every message with ID strictly greater than after, in
// insertion order. An unknown room yields an empty slice, not an error:
// a client may poll before its peer has posted anything.
func (m *Mailbox) List(roomID string, after int64) []StoredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return nil
	}
	room.touched = time.Now()

	// IDs are assigned in append order, so the suffix after the cursor
	// is contiguous.
	i := len(room.msgs)
	for i > 0 && room.msgs[i-1].ID > after {
		i--
	}
	if i == len(room.msgs) {
		return nil
	}

	out := make([]StoredMessage, len(room.msgs)-i)
	copy(out, room.msgs[i:])
	return out
}

// RoomCount reports how many mailbox rooms currently exist.
func (m *Mailbox) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Mailbox) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

// sweep drops rooms that have not been posted to or polled within the TTL.
func (m *Mailbox) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, room := range m.rooms {
		if now.Sub(room.touched) > m.ttl {
			delete(m.rooms, id)
			log.Debugf("mailbox room %s expired", id)
		}
	}
}

// Close stops the sweeper. Idempotent.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.done) })
}
