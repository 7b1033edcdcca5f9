package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxPostAssignsIncreasingIDs(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	var last int64
	for i := 0; i < 10; i++ {
		id := m.Post("movie-night", json.RawMessage(`{"n":1}`))
		assert.Greater(t, id, last)
		last = id
	}
}

func TestMailboxListAfterCursor(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	first := m.Post("movie-night", json.RawMessage(`"a"`))
	second := m.Post("movie-night", json.RawMessage(`"b"`))

	msgs := m.List("movie-night", 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, first, msgs[0].ID)
	assert.Equal(t, second, msgs[1].ID)

	msgs = m.List("movie-night", first)
	require.Len(t, msgs, 1)
	assert.Equal(t, second, msgs[0].ID)

	assert.Empty(t, m.List("movie-night", second))
}

func TestMailboxUnknownRoomIsEmptyNotError(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	assert.Empty(t, m.List("never-posted", 0))
}

func TestMailboxRoomsAreIsolated(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	m.Post("room-a", json.RawMessage(`"a"`))
	m.Post("room-b", json.RawMessage(`"b"`))

	msgs := m.List("room-a", 0)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `"a"`, string(msgs[0].Data))
}

// A client that always advances its cursor to the highest id it has
// seen receives every message exactly once, regardless of how posts and
// polls interleave.
func TestMailboxCursorDeliversExactlyOnce(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	const total = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			m.Post("busy", json.RawMessage(fmt.Sprintf("%d", i)))
		}
	}()

	seen := make(map[int64]int)
	var after int64
	for {
		for _, msg := range m.List("busy", after) {
			seen[msg.ID]++
			after = msg.ID
		}
		select {
		case <-done:
			for _, msg := range m.List("busy", after) {
				seen[msg.ID]++
				after = msg.ID
			}
			require.Len(t, seen, total)
			for id, count := range seen {
				assert.Equal(t, 1, count, "message %d surfaced more than once", id)
			}
			return
		default:
		}
	}
}

func TestMailboxConcurrentPostersAndPollers(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	const perPoster = 50
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPoster; i++ {
				m.Post("busy", json.RawMessage(`0`))
				m.List("busy", 0)
			}
		}()
	}
	wg.Wait()

	msgs := m.List("busy", 0)
	require.Len(t, msgs, 4*perPoster)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID)
	}
}

func TestMailboxSweepEvictsIdleRooms(t *testing.T) {
	m := NewMailbox(time.Minute)
	defer m.Close()

	m.Post("stale", json.RawMessage(`0`))
	m.Post("fresh", json.RawMessage(`0`))
	require.Equal(t, 2, m.RoomCount())

	// Touch "fresh" just before sweeping from the far future.
	future := time.Now().Add(90 * time.Second)
	m.mu.Lock()
	m.rooms["fresh"].touched = future
	m.mu.Unlock()

	m.sweep(future)
	assert.Equal(t, 1, m.RoomCount())
	assert.Empty(t, m.List("stale", 0))
	assert.NotEmpty(t, m.List("fresh", 0))
}
