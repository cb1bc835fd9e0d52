package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// hubFixture runs a real WebSocket server whose handler registers
// every accepted socket with the hub, so broadcast tests exercise
// actual network writes.
type hubFixture struct {
	hub      *Hub
	srv      *httptest.Server
	accepted chan *Connection
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	f := &hubFixture{
		hub:      NewHub(),
		accepted: make(chan *Connection, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := &Connection{
			ws:             ws,
			UserID:         r.URL.Query().Get("user"),
			OrgID:          "org-1",
			ConversationID: r.URL.Query().Get("conv"),
		}
		f.hub.Register(conn)
		f.accepted <- conn
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *hubFixture) dial(t *testing.T, conv, user string) (*websocket.Conn, *Connection) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?conv=" + conv + "&user=" + user
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case serverConn := <-f.accepted:
		return client, serverConn
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

// readUntilType drains frames until one with the wanted type arrives.
func readUntilType(t *testing.T, client *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", want, err)
		}
		var event map[string]any
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if event["type"] == want {
			return event
		}
	}
	t.Fatalf("no %q frame arrived", want)
	return nil
}

func TestHubRegisterSendsConnectedAck(t *testing.T) {
	f := newHubFixture(t)
	client, _ := f.dial(t, "conv-1", "user-1")

	event := readUntilType(t, client, "connected")
	if event["conversation_id"] != "conv-1" || event["user_id"] != "user-1" || event["org_id"] != "org-1" {
		t.Errorf("connected ack = %v", event)
	}
	joined := readUntilType(t, client, "user_joined")
	if joined["user_id"] != "user-1" || joined["connection_count"] != float64(1) {
		t.Errorf("user_joined = %v", joined)
	}

	if got := f.hub.ActiveConnections("conv-1"); got != 1 {
		t.Errorf("ActiveConnections = %d, want 1", got)
	}
}

func TestHubDeregisterAnnouncesDeparture(t *testing.T) {
	f := newHubFixture(t)
	watcher, _ := f.dial(t, "conv-1", "u1")
	_, leaving := f.dial(t, "conv-1", "u2")

	f.hub.Deregister(leaving, "normal")

	event := readUntilType(t, watcher, "user_left")
	if event["user_id"] != "u2" || event["connection_count"] != float64(1) {
		t.Errorf("user_left = %v", event)
	}
}

func TestHubSendToDropsBrokenConnection(t *testing.T) {
	f := newHubFixture(t)
	_, broken := f.dial(t, "conv-1", "u1")

	broken.ws.Close()
	f.hub.SendTo(broken, map[string]any{"type": "pong"})

	if got := f.hub.ActiveConnections("conv-1"); got != 0 {
		t.Errorf("broken socket not deregistered, ActiveConnections = %d", got)
	}
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	f := newHubFixture(t)
	clients := make([]*websocket.Conn, 3)
	for i, user := range []string{"u1", "u2", "u3"} {
		clients[i], _ = f.dial(t, "conv-1", user)
	}
	other, _ := f.dial(t, "conv-other", "u9")

	f.hub.Broadcast("conv-1", map[string]any{"type": "new_message", "body": "hi"})

	for i, client := range clients {
		event := readUntilType(t, client, "new_message")
		if event["body"] != "hi" {
			t.Errorf("client %d got %v", i, event)
		}
	}

	// The other conversation must not receive it.
	readUntilType(t, other, "connected")
	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		_, data, err := other.ReadMessage()
		if err != nil {
			break
		}
		var event map[string]any
		json.Unmarshal(data, &event)
		if event["type"] == "new_message" {
			t.Fatal("broadcast leaked into another conversation")
		}
	}
}

func TestHubBroadcastDropsFailedConnections(t *testing.T) {
	f := newHubFixture(t)
	healthy, _ := f.dial(t, "conv-1", "u1")
	_, brokenServer := f.dial(t, "conv-1", "u2")

	// Kill the second socket server-side so the next write fails.
	brokenServer.ws.Close()

	f.hub.Broadcast("conv-1", map[string]any{"type": "new_message", "body": "still here"})

	readUntilType(t, healthy, "new_message")

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ActiveConnections("conv-1") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.hub.ActiveConnections("conv-1"); got != 1 {
		t.Errorf("failed socket not deregistered, ActiveConnections = %d", got)
	}
}

func TestHubDeregisterIsIdempotent(t *testing.T) {
	f := newHubFixture(t)
	_, serverConn := f.dial(t, "conv-1", "u1")

	f.hub.Deregister(serverConn, "normal")
	f.hub.Deregister(serverConn, "normal")

	if got := f.hub.ActiveConnections("conv-1"); got != 0 {
		t.Errorf("ActiveConnections = %d, want 0", got)
	}
}

func TestHubShutdownAllNotifiesAndCloses(t *testing.T) {
	f := newHubFixture(t)
	c1, _ := f.dial(t, "conv-1", "u1")
	c2, _ := f.dial(t, "conv-2", "u2")

	done := make(chan struct{})
	go func() {
		f.hub.ShutdownAll()
		close(done)
	}()

	for _, client := range []*websocket.Conn{c1, c2} {
		readUntilType(t, client, "server_shutdown")

		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := client.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("expected close 1001, got %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownAll did not return")
	}

	if f.hub.ActiveConnections("conv-1") != 0 || f.hub.ActiveConnections("conv-2") != 0 {
		t.Error("registry not cleared after shutdown")
	}
}
