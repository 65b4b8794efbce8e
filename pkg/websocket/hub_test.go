package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func authorizedClient(t *testing.T, h *Hub, room string) *Client {
	t.Helper()
	c := NewClient(nil, h)
	require.NoError(t, c.BeginAuthorization())
	require.NoError(t, c.Authorize(room))
	return c
}

func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var out map[string]any
		require.NoError(t, json.Unmarshal(msg, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func requireClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case _, ok := <-c.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel still open")
	}
}

func TestClient_EnqueueRequiresAuthorization(t *testing.T) {
	c := NewClient(nil, nil)
	require.ErrorIs(t, c.Enqueue([]byte("x")), ErrNotAuthorized)
	require.NoError(t, c.BeginAuthorization())
	require.ErrorIs(t, c.Enqueue([]byte("x")), ErrNotAuthorized)
	require.NoError(t, c.Authorize("test"))
	require.NoError(t, c.Enqueue([]byte("x")))
	require.NotEmpty(t, c.ID)
}

func TestClient_EnqueueBufferFull(t *testing.T) {
	c := authorizedClient(t, nil, "test")
	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, c.Enqueue([]byte("x")))
	}
	require.ErrorIs(t, c.Enqueue([]byte("x")), ErrSendBufferFull)
}

func TestClient_AuthorizeQueuesFirstFramesBeforeBroadcasts(t *testing.T) {
	h := startHub(t)
	c := NewClient(nil, h)
	require.NoError(t, c.BeginAuthorization())
	require.NoError(t, c.Authorize("alice", []byte(`{"type":"login_ok"}`), []byte(`{"type":"decoded"}`)))
	h.Broadcast("alice", "hello", nil)

	require.Equal(t, "login_ok", receive(t, c)["type"])
	require.Equal(t, "decoded", receive(t, c)["type"])
	require.Equal(t, "hello", receive(t, c)["type"])
}

func TestHub_BroadcastToRoom(t *testing.T) {
	h := startHub(t)
	a := authorizedClient(t, h, "alice")
	b := authorizedClient(t, h, "bob")
	require.Equal(t, 2, h.Count())

	h.Broadcast("alice", "hello", map[string]any{"n": 1})
	msg := receive(t, a)
	require.Equal(t, "hello", msg["type"])
	require.NotEmpty(t, msg["timestamp"])

	select {
	case <-b.send:
		t.Fatal("bob should not receive alice's broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := startHub(t)
	a1 := authorizedClient(t, h, "alice")
	a2 := authorizedClient(t, h, "alice")
	b := authorizedClient(t, h, "bob")

	h.Disconnect("alice")
	requireClosed(t, a1)
	requireClosed(t, a2)
	require.Equal(t, 1, h.Count())
	require.NoError(t, b.Enqueue([]byte("still here")))
}

func TestHub_StopMakesCallsNoOps(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := authorizedClient(t, h, "alice")
	h.Stop()
	requireClosed(t, c)

	h.Broadcast("alice", "x", nil)
	h.Disconnect("alice")
	h.Unregister(c)
	require.Equal(t, 0, h.Count())
}

func TestHubRef_Replace(t *testing.T) {
	first := NewHub()
	ref := NewHubRef(first)
	got, ok := ref.Get()
	require.True(t, ok)
	require.Same(t, first, got)

	next := ref.Replace()
	got, _ = ref.Get()
	require.Same(t, next, got)
	select {
	case <-first.done:
	default:
		t.Fatal("old hub not stopped")
	}
}
