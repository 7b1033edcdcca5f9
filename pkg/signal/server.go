package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("signal")

// Server is the relay: it owns the push-binding room registry and the
// poll-binding mailbox, and serves both over one HTTP mux. It never
// interprets message payloads; it only fans them out within a room.
type Server struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	mailbox  *Mailbox
	httpSrv  *http.Server
}

// NewServer creates a relay server. mailboxTTL bounds how long an idle
// poll-binding room is retained; zero selects DefaultMailboxTTL.
func NewServer(mailboxTTL time.Duration) *Server {
	return &Server{
		rooms:   make(map[string]*Room),
		mailbox: NewMailbox(mailboxTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// getOrCreateRoom returns the existing room or creates a new one.
func (s *Server) getOrCreateRoom(id string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, exists := s.rooms[id]; exists {
		return room
	}

	room := newRoom(id)
	s.rooms[id] = room
	return room
}

// removeClient detaches a client from its room and evicts the room when
// it has no members left.
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[c.room]
	if !exists {
		return
	}
	if room.remove(c) {
		delete(s.rooms, c.room)
		log.Debugf("room %s empty, removed", c.room)
	}
}

// HandleWebSocket accepts a push-binding connection. The room id comes
// from the roomId query parameter; a missing or malformed id is a client
// error, and a full room is refused before the member set is touched.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := NormalizeRoomID(r.URL.Query().Get("roomId"))
	if !ValidateRoomID(roomID) {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		room:   roomID,
		send:   make(chan []byte, 256),
		server: s,
	}

	room := s.getOrCreateRoom(roomID)
	if !room.add(client) {
		log.Infof("room %s full, refusing connection", roomID)
		data, _ := json.Marshal(ErrorMessage{Type: "error", Error: "room is full"})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return
	}
	log.Debugf("client joined room %s", roomID)

	go client.writePump()
	go client.readPump()
}

// HandleSignaling serves the poll binding: POST appends a message to the
// room's mailbox, GET lists messages after the caller's cursor.
func (s *Server) HandleSignaling(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	roomID := NormalizeRoomID(req.RoomID)
	if !ValidateRoomID(roomID) {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	id := s.mailbox.Post(roomID, req.Message)
	writeJSON(w, PostResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	roomID := NormalizeRoomID(r.URL.Query().Get("roomId"))
	if !ValidateRoomID(roomID) {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil {
		after = 0
	}

	msgs := s.mailbox.List(roomID, after)
	writeJSON(w, ListResponse{Messages: msgs})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}

// Handler returns the relay's HTTP mux: the websocket upgrade endpoint
// and the poll endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/signaling", s.HandleSignaling)
	return mux
}

// StartServer starts the relay HTTP server and blocks until it stops.
func (s *Server) StartServer(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	log.Infof("relay server starting on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and the mailbox sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mailbox.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// MemberCount reports how many live push connections a room has.
func (s *Server) MemberCount(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[NormalizeRoomID(roomID)]
	if !exists {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.members)
}
