package signal

import (
	"strings"
	"sync"
)

// MaxRoomMembers caps how many live connections a room accepts. The
// coordination protocols layered on the relay are strictly two-party.
const MaxRoomMembers = 2

// Room holds the live push-binding connections for one room id.
type Room struct {
	id      string
	members map[*Client]bool
	mu      sync.RWMutex
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[*Client]bool),
	}
}

// add registers a client, refusing once the room is full.
func (r *Room) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= MaxRoomMembers {
		return false
	}
	r.members[c] = true
	return true
}

// remove drops a client and reports whether the room is now empty.
func (r *Room) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, c)
	return len(r.members) == 0
}

// forward relays raw bytes to every member except the sender. A member
// whose outbound buffer is full misses the message; the protocols above
// tolerate single-message loss.
func (r *Room) forward(sender *Client, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for member := range r.members {
		if member == sender {
			continue
		}
		select {
		case member.send <- data:
		default:
		}
	}
}

// NormalizeRoomID ensures consistent formatting (trimmed, case-insensitive).
func NormalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateRoomID checks that a room id is non-empty and contains no
// whitespace or control characters.
func ValidateRoomID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
