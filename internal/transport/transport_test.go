package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type inbound struct {
	connected    chan domain.Actor
	messages     chan arenadto.Envelope
	disconnected chan domain.Actor
}

func newInbound() *inbound {
	return &inbound{
		connected:    make(chan domain.Actor, 4),
		messages:     make(chan arenadto.Envelope, 4),
		disconnected: make(chan domain.Actor, 4),
	}
}

func (i *inbound) OnConnect(a domain.Actor)                        { i.connected <- a }
func (i *inbound) OnMessage(_ domain.Actor, env arenadto.Envelope) { i.messages <- env }
func (i *inbound) OnDisconnect(a domain.Actor)                     { i.disconnected <- a }

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
		var zero T
		return zero
	}
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	hub := NewHub()
	in := newInbound()
	lookup := func(_ context.Context, userID string) (map[domain.Category]int, error) {
		return map[domain.Category]int{domain.Blitz: 1430}, nil
	}
	srv := httptest.NewServer(NewServer(hub, in, Options{Lookup: lookup}).Handler())
	defer srv.Close()

	client := dial(t, srv, http.Header{HeaderUserID: {"u1"}, HeaderUsername: {"alice"}})
	defer client.Close(websocket.StatusNormalClosure, "")

	a := recv(t, in.connected)
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, 1430, a.RatingFor(domain.Blitz, 1200))
	assert.NotEmpty(t, a.ConnID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, client, map[string]any{
		"type":    arenadto.TypeJoinRoom,
		"payload": map[string]string{"sessionId": "abc"},
	}))
	env := recv(t, in.messages)
	assert.Equal(t, arenadto.TypeJoinRoom, env.Type)
	var req arenadto.SessionRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "abc", req.SessionID)

	hub.Subscribe("abc", a.ConnID)
	hub.Publish("abc", arenadto.Message{Type: arenadto.EventClock})
	var got arenadto.Message
	require.NoError(t, wsjson.Read(ctx, client, &got))
	assert.Equal(t, arenadto.EventClock, got.Type)

	hub.Send(a.ConnID, arenadto.Message{Type: arenadto.EventQueued})
	require.NoError(t, wsjson.Read(ctx, client, &got))
	assert.Equal(t, arenadto.EventQueued, got.Type)

	client.Close(websocket.StatusNormalClosure, "bye")
	gone := recv(t, in.disconnected)
	assert.Equal(t, a.ConnID, gone.ConnID)
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Members("abc"))
}

func TestQueryIdentityFallback(t *testing.T) {
	in := newInbound()
	srv := httptest.NewServer(NewServer(NewHub(), in, Options{}).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=u9"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	a := recv(t, in.connected)
	assert.Equal(t, "u9", a.UserID)
	assert.Equal(t, "u9", a.Username)
}

func TestMissingIdentityRejected(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewHub(), newInbound(), Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	c := &conn{
		actor: domain.Actor{ConnID: "c1"},
		send:  make(chan arenadto.Message, 1),
		done:  make(chan struct{}),
	}
	hub.register(c)
	hub.Send("c1", arenadto.Message{Type: "a"})
	hub.Send("c1", arenadto.Message{Type: "b"})

	select {
	case <-c.done:
	default:
		t.Fatal("connection should be closed once its buffer is full")
	}
	hub.unregister(c)
	assert.Equal(t, 0, hub.Len())
}
