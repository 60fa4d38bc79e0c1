package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesapos/api/internal/auth"
	"github.com/mesapos/api/internal/model"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, branch string) *Client {
	return &Client{
		hub:    hub,
		branch: branch,
		send:   make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	client := mockClient(hub, "centro")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if !hub.rooms["centro"][client] {
		t.Fatal("client not registered in branch room")
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := startHub(t)
	client1 := mockClient(hub, "centro")
	client2 := mockClient(hub, "centro")

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)
	if n := hub.Clients(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)
	if n := hub.Clients(); n != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", n)
	}

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms["centro"] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestPublishToBranch(t *testing.T) {
	hub := startHub(t)
	centro := mockClient(hub, "centro")
	norte := mockClient(hub, "norte")
	admin := mockClient(hub, AllBranches)

	for _, c := range []*Client{centro, norte, admin} {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.Publish("centro", "order.created", map[string]string{"id": "o-1"})

	ev := receive(t, centro)
	if ev.Type != "order.created" {
		t.Errorf("expected type 'order.created', got '%s'", ev.Type)
	}
	if string(ev.Payload) != `{"id":"o-1"}` {
		t.Errorf("unexpected payload %s", ev.Payload)
	}
	if ev.Branch != "centro" {
		t.Errorf("expected branch centro, got %q", ev.Branch)
	}
	if got := receive(t, admin); got.Type != "order.created" {
		t.Errorf("admin: expected 'order.created', got '%s'", got.Type)
	}
	expectNothing(t, norte)
}

func TestPublishWithoutBranchReachesEveryone(t *testing.T) {
	hub := startHub(t)
	clients := []*Client{mockClient(hub, "centro"), mockClient(hub, "norte"), mockClient(hub, ""), mockClient(hub, AllBranches)}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.Publish("", "table.updated", map[string]int{"number": 3})

	for i, c := range clients {
		if ev := receive(t, c); ev.Type != "table.updated" {
			t.Errorf("client%d: expected 'table.updated', got '%s'", i+1, ev.Type)
		}
	}
}

func TestPublishAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, "centro")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-stopped

	if _, ok := <-client.send; ok {
		t.Fatal("client channel should be closed on shutdown")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("centro", "sale.completed", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}

func TestServeWS(t *testing.T) {
	const secret = "test-secret"
	hub := startHub(t)
	srv := httptest.NewServer(ServeWS(hub, secret))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("rejects missing token", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "?token=garbage")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("delivers branch events", func(t *testing.T) {
		token, err := auth.GenerateToken(secret, model.Staff{ID: "s-1", Username: "andres", Role: "seller", Branch: "centro"})
		if err != nil {
			t.Fatal(err)
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		deadline := time.Now().Add(time.Second)
		for hub.Clients() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		hub.Publish("norte", "order.created", nil)
		hub.Publish("centro", "order.sent_to_checkout", map[string]string{"id": "pc-1"})

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal %s: %v", msg, err)
		}
		if ev.Type != "order.sent_to_checkout" {
			t.Errorf("expected 'order.sent_to_checkout', got '%s'", ev.Type)
		}
	})
}

func TestRoomFor(t *testing.T) {
	tests := []struct {
		role, branch, want string
	}{
		{"admin", "", AllBranches},
		{"admin", "centro", AllBranches},
		{"seller", "centro", "centro"},
		{"waiter", "norte", "norte"},
	}
	for _, tt := range tests {
		if got := roomFor(&auth.Claims{Role: tt.role, Branch: tt.branch}); got != tt.want {
			t.Errorf("roomFor(%s, %q) = %q, want %q", tt.role, tt.branch, got, tt.want)
		}
	}
}

func TestServeWS_OneFramePerEventAndCloseOnShutdown(t *testing.T) {
	const secret = "test-secret"
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	defer cancel()

	srv := httptest.NewServer(ServeWS(hub, secret))
	t.Cleanup(srv.Close)

	token, err := auth.GenerateToken(secret, model.Staff{ID: "w-1", Username: "camila", Role: "waiter", Branch: "centro"})
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish("centro", "order.created", map[string]string{"id": "o-1"})
	hub.Publish("centro", "order.ready", map[string]string{"id": "o-1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for _, want := range []string{"order.created", "order.ready"} {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("frame is not a single event: %s", msg)
		}
		if ev.Type != want {
			t.Errorf("expected %q, got %q", want, ev.Type)
		}
	}

	cancel()
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
