// Package engine is the exchange kernel: one matching engine for R.index
// that owns the order book, the position ledger, and the recent trade and
// liquidation history. A single RWMutex serializes writes; queries return
// copies so callers never alias live state.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/internal/book"
	"rindex-exchange/internal/config"
	"rindex-exchange/internal/db"
	"rindex-exchange/internal/liquidation"
	"rindex-exchange/internal/position"
	"rindex-exchange/pkg/types"
)

const (
	tradeHistoryCap       = 1000
	liquidationHistoryCap = 100
)

// Store is the persistence surface the engine writes through. *db.Store
// satisfies it; a nil Store runs the engine purely in memory (tests, demos).
type Store interface {
	SaveTrader(*types.Trader) error
	SaveOrder(*types.Order) error
	DeleteOrder(orderID uuid.UUID) error
	SavePosition(*types.Position) error
	DeletePosition(traderID uuid.UUID, instrument string) error
	SaveLiquidation(*types.Liquidation) error
	SaveMarketStats(*types.MarketStats) error
	ApplyFill(*db.FillRecord) error

	GetAllTraders() ([]*types.Trader, error)
	GetAllPositions(instrument string) ([]*types.Position, error)
	GetRecentTrades(instrument string, limit int) ([]*types.Trade, error)
	GetRecentLiquidations(instrument string, limit int) ([]*types.Liquidation, error)
	GetOpenOrders(instrument string) ([]*types.Order, error)
}

// Engine is the matching engine for the single R.index market.
type Engine struct {
	mu sync.RWMutex

	cfg   *config.Config
	log   *slog.Logger
	store Store
	fund  *liquidation.InsuranceFund
	calc  position.Calculator

	book      *book.Book
	traders   map[uuid.UUID]*types.Trader
	usernames map[string]uuid.UUID
	positions map[uuid.UUID]*types.Position

	// trades and liquidations are bounded histories, newest first.
	trades       []*types.Trade
	liquidations []*types.Liquidation

	lastPrice decimal.Decimal

	events chan Event
}

// New builds an engine. store may be nil for a memory-only kernel; fund is
// shared with the liquidation monitor.
func New(cfg *config.Config, store Store, fund *liquidation.InsuranceFund, log *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		log:       log.With("component", "engine"),
		store:     store,
		fund:      fund,
		calc:      position.NewCalculator(cfg.Liquidation.MaintenanceMargins),
		book:      book.New(types.RIndexSymbol),
		traders:   map[uuid.UUID]*types.Trader{},
		usernames: map[string]uuid.UUID{},
		positions: map[uuid.UUID]*types.Position{},
		events:    make(chan Event, eventBuffer),
	}
}

// RegisterTrader creates a trader with the configured starting balance.
func (e *Engine) RegisterTrader(username string, traderType types.TraderType) (*types.Trader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.usernames[username]; ok {
		return nil, fmt.Errorf("register %q: %w", username, ErrDuplicate)
	}
	t := &types.Trader{
		ID:        uuid.New(),
		Username:  username,
		Type:      traderType,
		Balance:   e.cfg.Trading.StartingBalance,
		TotalPnL:  decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	e.traders[t.ID] = t
	e.usernames[username] = t.ID
	e.persistTrader(t)
	e.log.Info("trader registered", "trader", username, "type", string(traderType))

	out := *t
	return &out, nil
}

// GetTrader returns a copy of the trader, or ErrNotFound.
func (e *Engine) GetTrader(id uuid.UUID) (*types.Trader, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.traders[id]
	if !ok {
		return nil, fmt.Errorf("trader %s: %w", id, ErrNotFound)
	}
	out := *t
	return &out, nil
}

// GetTraderByUsername returns a copy of the trader, or ErrNotFound.
func (e *Engine) GetTraderByUsername(username string) (*types.Trader, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.usernames[username]
	if !ok {
		return nil, fmt.Errorf("trader %q: %w", username, ErrNotFound)
	}
	out := *e.traders[id]
	return &out, nil
}

// GetAllTraders returns copies of every trader.
func (e *Engine) GetAllTraders() []*types.Trader {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*types.Trader, 0, len(e.traders))
	for _, t := range e.traders {
		c := *t
		out = append(out, &c)
	}
	return out
}

// GetPosition returns a copy of the trader's open position, or ErrNotFound
// when the trader is flat.
func (e *Engine) GetPosition(traderID uuid.UUID) (*types.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.positions[traderID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", traderID, ErrNotFound)
	}
	out := *p
	out.UnrealizedPnL = position.UnrealizedPnL(p, e.markPriceLocked())
	return &out, nil
}

// OpenPositions returns copies of every open position with unrealized P&L
// marked to the current price. Used by the liquidation monitor and the API.
func (e *Engine) OpenPositions() []*types.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	mark := e.markPriceLocked()
	out := make([]*types.Position, 0, len(e.positions))
	for _, p := range e.positions {
		c := *p
		c.UnrealizedPnL = position.UnrealizedPnL(p, mark)
		out = append(out, &c)
	}
	return out
}

// MarkPrice is the last trade price, or the configured starting price when
// nothing has traded yet.
func (e *Engine) MarkPrice() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.markPriceLocked()
}

func (e *Engine) markPriceLocked() decimal.Decimal {
	if e.lastPrice.IsZero() {
		return e.cfg.Instrument.StartingPrice
	}
	return e.lastPrice
}

// GetBook returns an aggregated book snapshot. depth <= 0 means full depth.
func (e *Engine) GetBook(depth int) *types.BookSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Snapshot(depth)
}

// GetOrdersAtPrice exposes the resting orders at one level, oldest first.
// Full transparency: any participant may inspect any level.
func (e *Engine) GetOrdersAtPrice(side types.Side, price decimal.Decimal) []types.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.OrdersAtPrice(side, price)
}

// GetRecentTrades returns up to limit trades, newest first.
func (e *Engine) GetRecentTrades(limit int) []*types.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.trades) {
		limit = len(e.trades)
	}
	out := make([]*types.Trade, 0, limit)
	for _, t := range e.trades[:limit] {
		c := *t
		out = append(out, &c)
	}
	return out
}

// GetRecentLiquidations returns up to limit liquidations, newest first.
func (e *Engine) GetRecentLiquidations(limit int) []*types.Liquidation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 || limit > len(e.liquidations) {
		limit = len(e.liquidations)
	}
	out := make([]*types.Liquidation, 0, limit)
	for _, l := range e.liquidations[:limit] {
		c := *l
		out = append(out, &c)
	}
	return out
}

// persistTrader writes through to the store, logging instead of failing;
// the store reconciles on restart.
func (e *Engine) persistTrader(t *types.Trader) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrader(t); err != nil {
		e.log.Error("persist trader", "trader", t.Username, "error", err)
	}
}

// pushTrade prepends to the bounded history.
func (e *Engine) pushTrade(t *types.Trade) {
	e.trades = append([]*types.Trade{t}, e.trades...)
	if len(e.trades) > tradeHistoryCap {
		e.trades = e.trades[:tradeHistoryCap]
	}
}

func (e *Engine) pushLiquidation(l *types.Liquidation) {
	e.liquidations = append([]*types.Liquidation{l}, e.liquidations...)
	if len(e.liquidations) > liquidationHistoryCap {
		e.liquidations = e.liquidations[:liquidationHistoryCap]
	}
}
