package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Send must never write into a channel that close() already closed, no matter
// how the two interleave.
func TestSendRacingDisconnectDoesNotPanic(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.Serve))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	for i := 0; i < 25; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)

		var hello ServerEvent
		require.NoError(t, ws.ReadJSON(&hello))
		require.Equal(t, EventHello, hello.Event)
		connID := hello.Data.(map[string]any)["connection_id"].(string)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Send(connID, ServerEvent{Event: EventAnnouncement})
			}
		}()
		go func() {
			defer wg.Done()
			hub.Disconnect(connID)
		}()
		wg.Wait()

		require.False(t, hub.Send(connID, ServerEvent{Event: EventAnnouncement}))
		_ = ws.Close()
	}
}
