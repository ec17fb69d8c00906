package messaging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangaverse/pkg/models"
)

// dialHub registers the server side of a real websocket with hub under
// userID and returns the client side.
func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	joined := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Join(userID, ws)
		close(joined)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never joined")
	}
	return client
}

func TestHubDeliversToRecipientOnly(t *testing.T) {
	hub := NewHub()
	bob := dialHub(t, hub, "u-b")
	bob2 := dialHub(t, hub, "u-b")
	dialHub(t, hub, "u-c")

	assert.Equal(t, 3, hub.Clients())

	n := hub.Deliver("u-b", Event{Type: EventMessageNew, From: "alice", Message: &models.Message{ID: 1, Content: "hi"}})
	assert.Equal(t, 2, n)

	for _, c := range []*websocket.Conn{bob, bob2} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev Event
		require.NoError(t, c.ReadJSON(&ev))
		assert.Equal(t, EventMessageNew, ev.Type)
		assert.Equal(t, "alice", ev.From)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hi", ev.Message.Content)
	}

	assert.Zero(t, hub.Deliver("u-nobody", Event{Type: EventMessageNew}))
}

func TestHubDropsStalledClient(t *testing.T) {
	hub := NewHub()
	hub.WriteWait = 50 * time.Millisecond
	dialHub(t, hub, "u-stalled") // never reads
	carol := dialHub(t, hub, "u-c")

	big := Event{Type: EventMessageNew, Message: &models.Message{Content: strings.Repeat("x", 1<<20)}}
	done := make(chan int)
	go func() {
		for i := 0; i < 500; i++ {
			if hub.Deliver("u-stalled", big) == 0 {
				done <- i
				return
			}
		}
		done <- -1
	}()

	select {
	case i := <-done:
		require.NotEqual(t, -1, i, "stalled client was never dropped")
	case <-time.After(10 * time.Second):
		t.Fatal("delivery to a stalled client blocked")
	}
	assert.Equal(t, 1, hub.Clients())

	assert.Equal(t, 1, hub.Deliver("u-c", Event{Type: EventMessageNew, From: "bob"}))
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, carol.ReadJSON(&ev))
	assert.Equal(t, "bob", ev.From)
}
