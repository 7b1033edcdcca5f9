package signal

import "encoding/json"

// StoredMessage is one entry in a room's poll mailbox. IDs are assigned
// by the server and are strictly increasing within a room, so clients can
// de-duplicate with a simple high-water-mark cursor.
type StoredMessage struct {
	ID   int64           `json:"id"`
	Data json.RawMessage `json:"data"`
}

// PostRequest is the body of POST /signaling.
type PostRequest struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

// PostResponse acknowledges a stored message with its assigned ID.
type PostResponse struct {
	ID int64 `json:"id"`
}

// ListResponse is the body of GET /signaling: every message in the room
// with ID greater than the caller's cursor, in insertion order.
type ListResponse struct {
	Messages []StoredMessage `json:"messages"`
}

// ErrorMessage is sent to a websocket client before the server closes a
// connection it cannot accept (room full, bad room id).
type ErrorMessage struct {
	Type  string `json:"type"` // always "error"
	Error string `json:"error"`
}
