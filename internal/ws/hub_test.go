package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// dial spins up a test server upgrading one connection into the hub and
// returns the client side.
func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		NewClient(hub, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return hub.ClientCount() > 0 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

func TestBroadcastEnvelope(t *testing.T) {
	hub := testHub(t)
	conn := dial(t, hub)

	before := time.Now().UnixMilli()
	hub.Broadcast("trade", map[string]string{"price": "1001"})

	msg := readMessage(t, conn)
	if msg.Type != "trade" {
		t.Errorf("type = %q", msg.Type)
	}
	if msg.Channel != "" {
		t.Errorf("broadcast should carry no channel, got %q", msg.Channel)
	}
	if msg.Timestamp < before || msg.Timestamp > time.Now().UnixMilli() {
		t.Errorf("timestamp %d out of range", msg.Timestamp)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["price"] != "1001" {
		t.Errorf("data = %#v", msg.Data)
	}
}

func TestChannelRequiresSubscription(t *testing.T) {
	hub := testHub(t)
	conn := dial(t, hub)

	// not subscribed: the channel event is withheld, the broadcast after it
	// still arrives
	hub.BroadcastToChannel(OrderBookChannel, "orderbook", "snap1")
	hub.Broadcast("trade", "t1")
	if msg := readMessage(t, conn); msg.Type != "trade" {
		t.Fatalf("got %q, channel events must not leak to non-subscribers", msg.Type)
	}

	sub, _ := json.Marshal(Message{Type: TypeSubscribe, Channel: OrderBookChannel})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatal(err)
	}
	// the read pump applies the subscription asynchronously
	waitFor(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.subscribed(OrderBookChannel) {
				return true
			}
		}
		return false
	})

	hub.BroadcastToChannel(OrderBookChannel, "orderbook", "snap2")
	msg := readMessage(t, conn)
	if msg.Type != "orderbook" || msg.Channel != OrderBookChannel || msg.Data != "snap2" {
		t.Errorf("subscribed client missed the channel event: %+v", msg)
	}

	unsub, _ := json.Marshal(Message{Type: TypeUnsubscribe, Channel: OrderBookChannel})
	if err := conn.WriteMessage(websocket.TextMessage, unsub); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.subscribed(OrderBookChannel) {
				return false
			}
		}
		return true
	})

	hub.BroadcastToChannel(OrderBookChannel, "orderbook", "snap3")
	hub.Broadcast("trade", "t2")
	if msg := readMessage(t, conn); msg.Type != "trade" {
		t.Errorf("got %q after unsubscribe", msg.Type)
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	hub := testHub(t)
	conn := dial(t, hub)

	want := []string{"trade", "order", "position", "liquidation"}
	for _, typ := range want {
		hub.Broadcast(typ, nil)
	}
	for i, typ := range want {
		if msg := readMessage(t, conn); msg.Type != typ {
			t.Fatalf("message %d = %q, want %q", i, msg.Type, typ)
		}
	}
}

func TestUnregisterOnClose(t *testing.T) {
	hub := testHub(t)
	conn := dial(t, hub)

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestNewClientAfterShutdown(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// an upgrade that lands after the hub has stopped must not hang the
	// handler goroutine on registration
	upgrader := websocket.Upgrader{}
	result := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		result <- NewClient(hub, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case client := <-result:
		if client != nil {
			t.Error("late connection must be refused, not registered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on a stopped hub")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("client count = %d after shutdown", n)
	}
}
