package ws

import (
	"context"

	"rindex-exchange/internal/engine"
)

// RunBridge drains the engine's event channel into the hub, preserving the
// engine's emission order on every client's stream. Book snapshots go only
// to subscribers of the book channel; everything else is broadcast.
func RunBridge(ctx context.Context, events <-chan engine.Event, hub *Hub) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.Type {
			case engine.EventOrderBook:
				hub.BroadcastToChannel(OrderBookChannel, string(ev.Type), ev.Data)
			default:
				hub.Broadcast(string(ev.Type), ev.Data)
			}
		}
	}
}
