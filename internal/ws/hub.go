// Package ws streams engine events to websocket subscribers.
//
// Every event goes out in one envelope shape. Trades, orders, positions,
// and liquidations are broadcast to everyone; order book snapshots only go
// to clients subscribed to the book channel, since full-depth snapshots
// per fill are heavy.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message is the wire envelope for every outbound event and every inbound
// request. Timestamp is unix milliseconds.
type Message struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// OrderBookChannel is the only subscription channel: full book snapshots
// for R.index.
const OrderBookChannel = "orderbook:R.index"

// outbound pairs a serialized frame with the channel it targets; an empty
// channel means all clients.
type outbound struct {
	channel string
	data    []byte
}

// Hub manages websocket clients and fans events out to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex
	log        *slog.Logger
}

// NewHub creates a hub. Call Run before registering clients.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		log:        log.With("component", "ws-hub"),
	}
}

// Run is the hub's main loop. It owns the client set; returns when ctx is
// cancelled, closing every client. After it returns, late registrations
// and unregistrations fall through on done instead of blocking forever.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", "count", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", "count", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if msg.channel != "" && !client.subscribed(msg.channel) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// client can't keep up, drop it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event of the given type to every client.
func (h *Hub) Broadcast(eventType string, data any) {
	h.publish("", eventType, data)
}

// BroadcastToChannel sends an event only to clients subscribed to channel.
func (h *Hub) BroadcastToChannel(channel, eventType string, data any) {
	h.publish(channel, eventType, data)
}

func (h *Hub) publish(channel, eventType string, data any) {
	msg := Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal event", "type", eventType, "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{channel: channel, data: frame}:
	default:
		h.log.Warn("broadcast channel full, dropping event", "type", eventType)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
