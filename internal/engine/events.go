package engine

import "rindex-exchange/pkg/types"

// EventType tags the payload of an engine event.
type EventType string

const (
	EventTrade       EventType = "trade"
	EventOrder       EventType = "order"
	EventPosition    EventType = "position"
	EventLiquidation EventType = "liquidation"
	EventOrderBook   EventType = "orderbook"
)

// Event is one state change published by the engine. Payloads are copies;
// consumers never see live engine state.
type Event struct {
	Type EventType
	Data any
}

// eventBuffer sizes the engine's event channel. The bridge draining it runs
// on its own goroutine, so the buffer only has to absorb bursts.
const eventBuffer = 1024

// Events returns the channel the engine publishes state changes on.
// Exactly one consumer should drain it.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit publishes without ever blocking the matching path. If the consumer
// falls behind far enough to fill the buffer, events are dropped; the
// book snapshot events make the stream self-healing.
func (e *Engine) emit(typ EventType, data any) {
	select {
	case e.events <- Event{Type: typ, Data: data}:
	default:
		e.log.Warn("event buffer full, dropping", "type", string(typ))
	}
}

// PositionUpdate is the payload of EventPosition. Position is nil when the
// trader went flat.
type PositionUpdate struct {
	TraderID string          `json:"trader_id"`
	Position *types.Position `json:"position"`
}
