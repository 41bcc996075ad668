package engine

import (
	"fmt"

	"rindex-exchange/pkg/types"
)

// Recover rebuilds the in-memory state from the store: traders, open
// positions, bounded trade and liquidation history, and the resting orders
// in arrival order so book priority matches the pre-restart book. Called
// once before the engine starts serving.
func (e *Engine) Recover() error {
	if e.store == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	traders, err := e.store.GetAllTraders()
	if err != nil {
		return fmt.Errorf("recover traders: %w: %v", ErrPersistence, err)
	}
	for _, t := range traders {
		e.traders[t.ID] = t
		e.usernames[t.Username] = t.ID
	}

	positions, err := e.store.GetAllPositions(types.RIndexSymbol)
	if err != nil {
		return fmt.Errorf("recover positions: %w: %v", ErrPersistence, err)
	}
	for _, p := range positions {
		e.positions[p.TraderID] = p
	}

	trades, err := e.store.GetRecentTrades(types.RIndexSymbol, tradeHistoryCap)
	if err != nil {
		return fmt.Errorf("recover trades: %w: %v", ErrPersistence, err)
	}
	e.trades = trades
	if len(trades) > 0 {
		e.lastPrice = trades[0].Price
	}

	liquidations, err := e.store.GetRecentLiquidations(types.RIndexSymbol, liquidationHistoryCap)
	if err != nil {
		return fmt.Errorf("recover liquidations: %w: %v", ErrPersistence, err)
	}
	e.liquidations = liquidations

	orders, err := e.store.GetOpenOrders(types.RIndexSymbol)
	if err != nil {
		return fmt.Errorf("recover orders: %w: %v", ErrPersistence, err)
	}
	for _, o := range orders {
		e.book.Add(o)
	}

	e.log.Info("state recovered",
		"traders", len(traders),
		"positions", len(positions),
		"trades", len(trades),
		"liquidations", len(liquidations),
		"open_orders", len(orders))
	return nil
}
