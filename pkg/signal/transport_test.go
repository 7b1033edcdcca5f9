package signal

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsBase(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// Compile-time conformance of every binding to Transport.
var (
	_ Transport = (*WSTransport)(nil)
	_ Transport = (*PollTransport)(nil)
	_ Transport = (*Loopback)(nil)
)

type recorder struct {
	mu   sync.Mutex
	msgs []json.RawMessage
}

func (r *recorder) handle(raw json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	r.msgs = append(r.msgs, cp)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) all() []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]json.RawMessage(nil), r.msgs...)
}

func TestLoopbackDeliversToAllSubscribersIncludingSender(t *testing.T) {
	lb := NewLoopback()
	var a, b recorder

	cancelA, err := lb.Subscribe("movie-night", a.handle)
	require.NoError(t, err)
	defer cancelA()
	cancelB, err := lb.Subscribe("movie-night", b.handle)
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, lb.Send("movie-night", map[string]string{"type": "offer"}))

	// Loopback has no sender identity, so both handlers fire. Engines
	// drop their own echoes by token.
	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())
	assert.JSONEq(t, `{"type":"offer"}`, string(a.all()[0]))
}

func TestLoopbackRoomsAreIsolated(t *testing.T) {
	lb := NewLoopback()
	var a, b recorder

	cancelA, _ := lb.Subscribe("room-a", a.handle)
	defer cancelA()
	cancelB, _ := lb.Subscribe("room-b", b.handle)
	defer cancelB()

	require.NoError(t, lb.Send("room-a", "hello"))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
}

func TestLoopbackCancelStopsDelivery(t *testing.T) {
	lb := NewLoopback()
	var a recorder

	cancel, _ := lb.Subscribe("movie-night", a.handle)
	require.NoError(t, lb.Send("movie-night", 1))
	cancel()
	require.NoError(t, lb.Send("movie-night", 2))

	assert.Equal(t, 1, a.count())
}

func TestWSTransportForwardsBetweenPeers(t *testing.T) {
	_, ts := newTestServer(t)

	a := NewWSTransport(wsBase(ts))
	defer a.Close()
	b := NewWSTransport(wsBase(ts))
	defer b.Close()

	var got recorder
	cancel, err := b.Subscribe("movie-night", got.handle)
	require.NoError(t, err)
	defer cancel()

	// a must also be joined before it can send.
	var own recorder
	cancelA, err := a.Subscribe("movie-night", own.handle)
	require.NoError(t, err)
	defer cancelA()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, a.Send("movie-night", map[string]string{"type": "offer"}))

	require.Eventually(t, func() bool { return got.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"offer"}`, string(got.all()[0]))

	// The relay never routes a message back to its sender.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, own.count())
}

func TestPollTransportDeliversExactlyOnce(t *testing.T) {
	_, ts := newTestServer(t)

	a := NewPollTransport(ts.URL, 20*time.Millisecond)
	defer a.Close()
	b := NewPollTransport(ts.URL, 20*time.Millisecond)
	defer b.Close()

	var got recorder
	cancel, err := b.Subscribe("movie-night", got.handle)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, a.Send("movie-night", map[string]string{"type": "offer"}))
	require.NoError(t, a.Send("movie-night", map[string]string{"type": "candidate"}))

	require.Eventually(t, func() bool { return got.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"offer"}`, string(got.all()[0]))
	assert.JSONEq(t, `{"type":"candidate"}`, string(got.all()[1]))

	// Further polls must not resurface already-delivered messages.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, got.count())
}

// The mailbox has no sender identity, so a polling client sees its own
// posts. Engines must drop them by token, same as over Loopback.
func TestPollTransportSeesOwnPosts(t *testing.T) {
	_, ts := newTestServer(t)

	tr := NewPollTransport(ts.URL, 20*time.Millisecond)
	defer tr.Close()

	var got recorder
	cancel, err := tr.Subscribe("movie-night", got.handle)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, tr.Send("movie-night", "hello"))
	require.Eventually(t, func() bool { return got.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
