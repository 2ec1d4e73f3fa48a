package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devschat/internal/app/chat"
	"devschat/internal/configs"
	"devschat/internal/pkg/auth/ticket"
)

// frame mirrors the wire shape of server events with the payload kept raw.
type frame struct {
	ID        string          `json:"id"`
	Type      chat.EventType  `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	TempID    string          `json:"tempID"`
	Timestamp int64           `json:"timestamp"`
}

func startChatServer(t *testing.T, customize func(cfg *configs.AppConfig)) (*httptest.Server, *chat.Registry) {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment: "development",
		Port:        8080,
		EchoSender:  true,
	}
	if customize != nil {
		customize(cfg)
	}

	registry := chat.NewRegistry(cfg)
	t.Cleanup(registry.Shutdown)

	srv := httptest.NewServer(Router(&AppDeps{
		Registry: registry,
		Config:   cfg,
	}))
	t.Cleanup(srv.Close)

	return srv, registry
}

func dialChat(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType chat.EventType, payload any, tempID string) {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	envelope := chat.Envelope{
		Type:    frameType,
		Payload: raw,
		TempID:  tempID,
	}

	require.NoError(t, conn.WriteJSON(envelope))
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var f frame
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "expected a frame before the connection closed")
	require.NoError(t, json.Unmarshal(raw, &f))

	return f
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected the server to close the connection")
}

func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got: %s", raw)
	}
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "expected a read timeout, got: %v", err)
}

func ackError(t *testing.T, f frame) string {
	t.Helper()
	require.Equal(t, chat.TypeAck, f.Type)

	var payload chat.AckPayload
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	return payload.Error
}

func rosterOf(t *testing.T, f frame) []string {
	t.Helper()
	require.Equal(t, chat.TypeRoomData, f.Type)

	var payload chat.RoomDataPayload
	require.NoError(t, json.Unmarshal(f.Payload, &payload))

	names := make([]string, 0, len(payload.Users))
	for _, u := range payload.Users {
		names = append(names, u.Name)
	}
	return names
}

// join performs the handshake and consumes the ack and the first roster.
func join(t *testing.T, conn *websocket.Conn, name, room string) {
	t.Helper()

	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{Name: name, Room: room}, name+"-join")

	ack := readFrame(t, conn)
	require.Equal(t, name+"-join", ack.TempID)
	require.Empty(t, ackError(t, ack))

	roster := readFrame(t, conn)
	require.Equal(t, chat.TypeRoomData, roster.Type)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Code int `json:"code"`
		Data struct {
			Status      string `json:"status"`
			ActiveRooms int    `json:"active_rooms"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, 0, body.Data.ActiveRooms)
}

func TestChatLifecycle(t *testing.T) {
	srv, registry := startChatServer(t, nil)

	alice := dialChat(t, srv)
	sendFrame(t, alice, chat.TypeJoin, chat.JoinPayload{Name: "alice", Room: "r1"}, "a1")

	ack := readFrame(t, alice)
	assert.Equal(t, "a1", ack.TempID)
	require.Empty(t, ackError(t, ack))
	assert.Equal(t, []string{"alice"}, rosterOf(t, readFrame(t, alice)))

	bob := dialChat(t, srv)
	join(t, bob, "bob", "r1")

	// Alice observes bob's arrival: userJoined first, then the roster that
	// includes him.
	joined := readFrame(t, alice)
	require.Equal(t, chat.TypeUserJoined, joined.Type)
	var userEvent chat.UserEventPayload
	require.NoError(t, json.Unmarshal(joined.Payload, &userEvent))
	assert.Equal(t, "bob", userEvent.User.Name)
	assert.Equal(t, []string{"alice", "bob"}, rosterOf(t, readFrame(t, alice)))

	// Alice talks; echo is on by default so she hears herself after the ack.
	sendFrame(t, alice, chat.TypeSendMessage, chat.SendMessagePayload{Text: "hi"}, "m1")

	msgAck := readFrame(t, alice)
	assert.Equal(t, "m1", msgAck.TempID)
	require.Empty(t, ackError(t, msgAck))

	for _, conn := range []*websocket.Conn{alice, bob} {
		f := readFrame(t, conn)
		require.Equal(t, chat.TypeMessage, f.Type)

		var payload chat.MessagePayload
		require.NoError(t, json.Unmarshal(f.Payload, &payload))
		assert.Equal(t, "alice", payload.User)
		assert.Equal(t, "hi", payload.Text)
		assert.Positive(t, payload.Timestamp)
	}

	// Abrupt close: bob sees exactly one userLeft then the shrunken roster.
	require.NoError(t, alice.Close())

	left := readFrame(t, bob)
	require.Equal(t, chat.TypeUserLeft, left.Type)
	require.NoError(t, json.Unmarshal(left.Payload, &userEvent))
	assert.Equal(t, "alice", userEvent.User.Name)
	assert.Equal(t, []string{"bob"}, rosterOf(t, readFrame(t, bob)))

	// Last leave destroys the room.
	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool {
		return !registry.Contains("r1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEchoDisabled(t *testing.T) {
	srv, _ := startChatServer(t, func(cfg *configs.AppConfig) {
		cfg.EchoSender = false
	})

	alice := dialChat(t, srv)
	join(t, alice, "alice", "r1")

	bob := dialChat(t, srv)
	join(t, bob, "bob", "r1")

	// Drain alice's view of bob's arrival.
	require.Equal(t, chat.TypeUserJoined, readFrame(t, alice).Type)
	require.Equal(t, chat.TypeRoomData, readFrame(t, alice).Type)

	sendFrame(t, alice, chat.TypeSendMessage, chat.SendMessagePayload{Text: "hi"}, "m1")
	require.Empty(t, ackError(t, readFrame(t, alice)))

	f := readFrame(t, bob)
	require.Equal(t, chat.TypeMessage, f.Type)

	expectNoFrame(t, alice, 300*time.Millisecond)
}

func TestJoinWithEmptyNameRejected(t *testing.T) {
	srv, registry := startChatServer(t, nil)

	conn := dialChat(t, srv)
	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{Name: "   ", Room: "r1"}, "j1")

	ack := readFrame(t, conn)
	assert.Equal(t, "j1", ack.TempID)
	assert.NotEmpty(t, ackError(t, ack))

	expectClosed(t, conn)

	// No membership change and no room came into existence.
	assert.False(t, registry.Contains("r1"))
}

func TestJoinWithEmptyRoomRejected(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	conn := dialChat(t, srv)
	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{Name: "alice", Room: ""}, "j1")

	assert.NotEmpty(t, ackError(t, readFrame(t, conn)))
	expectClosed(t, conn)
}

func TestSecondJoinRejected(t *testing.T) {
	srv, registry := startChatServer(t, nil)

	conn := dialChat(t, srv)
	join(t, conn, "alice", "r1")

	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{Name: "alice2", Room: "r2"}, "j2")

	ack := readFrame(t, conn)
	assert.Equal(t, "j2", ack.TempID)
	assert.NotEmpty(t, ackError(t, ack))

	expectClosed(t, conn)

	// The offending connection is torn down; its original room empties out.
	require.Eventually(t, func() bool {
		return !registry.Contains("r1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, registry.Contains("r2"))
}

func TestMessageBeforeJoinCloses(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	conn := dialChat(t, srv)
	sendFrame(t, conn, chat.TypeSendMessage, chat.SendMessagePayload{Text: "hi"}, "m1")

	assert.NotEmpty(t, ackError(t, readFrame(t, conn)))
	expectClosed(t, conn)
}

func TestEmptyMessageIsIgnored(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	alice := dialChat(t, srv)
	join(t, alice, "alice", "r1")

	sendFrame(t, alice, chat.TypeSendMessage, chat.SendMessagePayload{Text: "  "}, "m1")

	// Acked but never broadcast, not even back to the sender with echo on.
	ack := readFrame(t, alice)
	assert.Equal(t, "m1", ack.TempID)
	require.Empty(t, ackError(t, ack))

	expectNoFrame(t, alice, 300*time.Millisecond)
}

func TestOversizedMessageKeepsConnection(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	alice := dialChat(t, srv)
	join(t, alice, "alice", "r1")

	sendFrame(t, alice, chat.TypeSendMessage, chat.SendMessagePayload{
		Text: strings.Repeat("a", chat.MaxContentBytes+1),
	}, "m1")

	errFrame := readFrame(t, alice)
	require.Equal(t, chat.TypeError, errFrame.Type)

	// Still a member: a normal message goes through afterwards.
	sendFrame(t, alice, chat.TypeSendMessage, chat.SendMessagePayload{Text: "short"}, "m2")
	require.Empty(t, ackError(t, readFrame(t, alice)))

	f := readFrame(t, alice)
	assert.Equal(t, chat.TypeMessage, f.Type)
}

func TestTicketSuppliesDisplayName(t *testing.T) {
	const secret = "test-ticket-secret"

	srv, _ := startChatServer(t, func(cfg *configs.AppConfig) {
		cfg.TicketSecret = secret
	})

	token, err := ticket.Generate("carol", secret)
	require.NoError(t, err)

	conn := dialChat(t, srv)
	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{
		Name:  "spoofed-name",
		Room:  "r1",
		Token: token,
	}, "j1")

	require.Empty(t, ackError(t, readFrame(t, conn)))

	// The verified claim wins over the raw name field.
	assert.Equal(t, []string{"carol"}, rosterOf(t, readFrame(t, conn)))
}

func TestInvalidTicketRejected(t *testing.T) {
	srv, registry := startChatServer(t, func(cfg *configs.AppConfig) {
		cfg.TicketSecret = "server-secret"
	})

	token, err := ticket.Generate("carol", "wrong-secret")
	require.NoError(t, err)

	conn := dialChat(t, srv)
	sendFrame(t, conn, chat.TypeJoin, chat.JoinPayload{
		Name:  "carol",
		Room:  "r1",
		Token: token,
	}, "j1")

	assert.NotEmpty(t, ackError(t, readFrame(t, conn)))
	expectClosed(t, conn)
	assert.False(t, registry.Contains("r1"))
}

func TestMalformedFrameCloses(t *testing.T) {
	srv, _ := startChatServer(t, nil)

	conn := dialChat(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	expectClosed(t, conn)
}
