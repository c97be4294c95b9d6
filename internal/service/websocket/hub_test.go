package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dogfinder/internal/events"
	"dogfinder/internal/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()
	hub := NewHubService(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubService_PublishReachesViewers(t *testing.T) {
	hub, server := startHub(t)
	a := dial(t, server)
	b := dial(t, server)
	waitForClients(t, hub, 2)

	if err := hub.Publish(events.Message{ScanID: "scan-7", Phase: "found", Step: 2, Found: true, Confidence: 0.77}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		var msg events.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Invalid payload %s: %v", data, err)
		}
		if msg.ScanID != "scan-7" || msg.Phase != "found" || msg.Confidence != 0.77 {
			t.Errorf("Unexpected message %+v", msg)
		}
	}
}

func TestHubService_Unregister(t *testing.T) {
	hub, server := startHub(t)
	dial(t, server)
	waitForClients(t, hub, 1)

	hub.mutex.RLock()
	var conn *websocket.Conn
	for c := range hub.clients {
		conn = c
	}
	hub.mutex.RUnlock()

	hub.Unregister(conn)
	waitForClients(t, hub, 0)
}

func TestHubService_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHubService(logger.Nop())

	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast([]byte("x")) {
			t.Fatalf("Broadcast %d should have been queued", i)
		}
	}
	if hub.Broadcast([]byte("overflow")) {
		t.Error("Expected broadcast to be dropped when the queue is full")
	}
}
