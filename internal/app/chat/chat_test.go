package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"devschat/internal/configs"
)

// wireFrame mirrors the outbound event shape with the payload kept raw so
// tests can decode it per type.
type wireFrame struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	TempID    string          `json:"tempID"`
	Timestamp int64           `json:"timestamp"`
}

func testConfig(echoSender bool) *configs.AppConfig {
	return &configs.AppConfig{
		Environment: "development",
		Port:        8080,
		EchoSender:  echoSender,
	}
}

func newTestRegistry(t *testing.T, echoSender bool) *Registry {
	t.Helper()
	registry := NewRegistry(testConfig(echoSender))
	t.Cleanup(registry.Shutdown)
	return registry
}

// newMember joins a client without a live transport. Frames pile up in the
// send buffer where tests read them directly.
func newMember(t *testing.T, registry *Registry, roomName, name string) *Client {
	t.Helper()

	c := NewClient(registry, nil)
	c.name = name

	room, customErr := registry.Join(roomName, registration{client: c, tempID: name + "-join"})
	require.Nil(t, customErr)
	c.room = room

	return c
}

func nextFrame(t *testing.T, c *Client) wireFrame {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed while expecting a frame")
		var frame wireFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return wireFrame{}
	}
}

func rosterNames(t *testing.T, frame wireFrame) []string {
	t.Helper()
	require.Equal(t, TypeRoomData, frame.Type)

	var payload RoomDataPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))

	names := make([]string, 0, len(payload.Users))
	for _, u := range payload.Users {
		names = append(names, u.Name)
	}
	return names
}

// waitForRoster reads frames until a roomData matching want arrives.
func waitForRoster(t *testing.T, c *Client, want []string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for roster %v", want)
			var frame wireFrame
			require.NoError(t, json.Unmarshal(raw, &frame))
			if frame.Type != TypeRoomData {
				continue
			}
			if equalNames(rosterNames(t, frame), want) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for roster %v", want)
		}
	}
}

func equalNames(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func expectNoFrame(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("expected no frame, got: %s", raw)
		}
	case <-time.After(wait):
	}
}

func leave(t *testing.T, c *Client) {
	t.Helper()
	c.room.Leave(c)
}

func sendChat(t *testing.T, c *Client, text string) {
	t.Helper()

	message := NewEvent(TypeMessage, MessagePayload{
		User:      c.name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})

	require.True(t, c.room.Broadcast(c, message), "room closed while broadcasting")
}

// newWSPair upgrades a loopback connection and returns both ends, for tests
// that need a real transport behind a Client.
func newWSPair(t *testing.T) (serverConn, clientConn *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of the connection")
	}

	return serverConn, clientConn
}
