package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/internal/db"
	"rindex-exchange/internal/position"
	"rindex-exchange/pkg/types"
)

// OrderRequest carries the caller's intent into SubmitOrder.
type OrderRequest struct {
	TraderID   uuid.UUID
	Instrument string
	Side       types.Side
	Type       types.OrderType
	Price      decimal.Decimal
	Size       decimal.Decimal
	Leverage   int
}

// SubmitOrder validates, matches, and (for limit remainders) rests an order.
// It returns the final order state and the trades it produced, in execution
// order. All side effects of every fill, including persistence and event
// emission, are complete before it returns.
func (e *Engine) SubmitOrder(req OrderRequest) (*types.Order, []*types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(req)
}

// submitLocked is the matching path. Callers hold e.mu for writing.
func (e *Engine) submitLocked(req OrderRequest) (*types.Order, []*types.Trade, error) {
	if err := e.validate(req); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	order := &types.Order{
		ID:         uuid.New(),
		TraderID:   req.TraderID,
		Instrument: types.RIndexSymbol,
		Side:       req.Side,
		Type:       req.Type,
		Price:      req.Price,
		Size:       req.Size,
		FilledSize: decimal.Zero,
		Leverage:   req.Leverage,
		Status:     types.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	market := order.Type == types.OrderTypeMarket
	var trades []*types.Trade

	for order.RemainingSize().IsPositive() {
		resting := e.book.FirstMatchable(order.Side, order.Price, market, order.TraderID)
		if resting == nil {
			break
		}
		trades = append(trades, e.fill(order, resting))
	}

	// A market order that found liquidity but only its own is rejected
	// outright so the caller knows nothing happened.
	if market && len(trades) == 0 {
		if e.book.FirstMatchable(order.Side, order.Price, true, uuid.Nil) != nil {
			return nil, nil, fmt.Errorf("order %s: %w", order.ID, ErrSelfTradeOnly)
		}
	}

	// Only orders that end up resting are stored; the orders table holds
	// exactly the open book, so terminal orders never leave rows behind.
	if order.RemainingSize().IsPositive() {
		if market {
			order.Status = types.OrderStatusCancelled
			order.UpdatedAt = time.Now().UTC()
		} else {
			e.book.Add(order)
			e.persistOrder(order)
		}
	}

	orderCopy := *order
	e.emit(EventOrder, &orderCopy)
	e.emit(EventOrderBook, e.book.Snapshot(0))

	e.log.Info("order submitted",
		"order", order.ID,
		"side", string(order.Side),
		"type", string(order.Type),
		"size", order.Size,
		"filled", order.FilledSize,
		"status", string(order.Status),
		"fills", len(trades))

	return &orderCopy, trades, nil
}

func (e *Engine) validate(req OrderRequest) error {
	if req.Instrument != "" && req.Instrument != types.RIndexSymbol {
		return fmt.Errorf("instrument %q: %w", req.Instrument, ErrUnknownInstrument)
	}
	if _, ok := e.traders[req.TraderID]; !ok {
		return fmt.Errorf("trader %s: %w", req.TraderID, ErrUnknownTrader)
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return fmt.Errorf("side %q: %w", req.Side, ErrInvalidOrder)
	}
	if req.Type != types.OrderTypeLimit && req.Type != types.OrderTypeMarket {
		return fmt.Errorf("type %q: %w", req.Type, ErrInvalidOrder)
	}
	if !req.Size.IsPositive() || req.Size.LessThan(e.cfg.Instrument.MinOrderSize) {
		return fmt.Errorf("size %s below minimum %s: %w", req.Size, e.cfg.Instrument.MinOrderSize, ErrInvalidOrder)
	}
	if req.Leverage < 1 || req.Leverage > e.cfg.Instrument.MaxLeverage {
		return fmt.Errorf("leverage %d outside 1-%d: %w", req.Leverage, e.cfg.Instrument.MaxLeverage, ErrInvalidOrder)
	}
	if req.Type == types.OrderTypeLimit && !req.Price.IsPositive() {
		return fmt.Errorf("limit price %s: %w", req.Price, ErrInvalidOrder)
	}
	return nil
}

// fill executes one fill between the aggressor and a resting order at the
// resting order's price, updating both orders, both positions, both
// traders, the trade history, and the store, then emitting the per-fill
// events in a fixed order: trade, resting order, positions.
func (e *Engine) fill(aggressor, resting *types.Order) *types.Trade {
	now := time.Now().UTC()
	size := decimal.Min(aggressor.RemainingSize(), resting.RemainingSize())
	price := resting.Price

	e.book.Reduce(resting.ID, size)
	aggressor.FilledSize = aggressor.FilledSize.Add(size)

	for _, o := range []*types.Order{aggressor, resting} {
		if o.RemainingSize().IsZero() {
			o.Status = types.OrderStatusFilled
		} else {
			o.Status = types.OrderStatusPartial
		}
		o.UpdatedAt = now
	}
	if resting.Status == types.OrderStatusFilled {
		e.book.Remove(resting.ID)
	}

	buyOrder, sellOrder := aggressor, resting
	if aggressor.Side == types.SideSell {
		buyOrder, sellOrder = resting, aggressor
	}

	buyerRes := e.applyFillSide(buyOrder.TraderID, size, price, buyOrder.Leverage, now)
	sellerRes := e.applyFillSide(sellOrder.TraderID, size.Neg(), price, sellOrder.Leverage, now)

	trade := &types.Trade{
		ID:                uuid.New(),
		Instrument:        types.RIndexSymbol,
		Price:             price,
		Size:              size,
		Timestamp:         now,
		BuyerID:           buyOrder.TraderID,
		SellerID:          sellOrder.TraderID,
		BuyerOrderID:      buyOrder.ID,
		SellerOrderID:     sellOrder.ID,
		BuyerLeverage:     buyOrder.Leverage,
		SellerLeverage:    sellOrder.Leverage,
		BuyerEffect:       buyerRes.Effect,
		SellerEffect:      sellerRes.Effect,
		BuyerNewPosition:  positionSize(buyerRes.Position),
		SellerNewPosition: positionSize(sellerRes.Position),
		AggressorSide:     aggressor.Side,
	}

	e.lastPrice = price
	e.pushTrade(trade)
	e.persistFill(trade, resting, buyerRes, sellerRes)

	tradeCopy := *trade
	e.emit(EventTrade, &tradeCopy)
	restingCopy := *resting
	e.emit(EventOrder, &restingCopy)
	e.emitPosition(buyOrder.TraderID, buyerRes.Position)
	e.emitPosition(sellOrder.TraderID, sellerRes.Position)

	return trade
}

// applyFillSide folds one side of a fill into the trader's position and
// running stats. delta is signed: positive for the buyer.
func (e *Engine) applyFillSide(traderID uuid.UUID, delta, price decimal.Decimal, leverage int, now time.Time) position.Result {
	res := position.Apply(e.positions[traderID], delta, price, leverage, now)
	if res.Position != nil {
		res.Position.TraderID = traderID
		res.Position.LiquidationPrice = e.calc.LiquidationPrice(res.Position)
		e.positions[traderID] = res.Position
	} else {
		delete(e.positions, traderID)
	}

	t := e.traders[traderID]
	t.TradeCount++
	t.TotalPnL = t.TotalPnL.Add(res.RealizedPnL)
	if leverage > t.MaxLeverageUsed {
		t.MaxLeverageUsed = leverage
	}
	return res
}

func (e *Engine) emitPosition(traderID uuid.UUID, pos *types.Position) {
	var c *types.Position
	if pos != nil {
		cp := *pos
		c = &cp
	}
	e.emit(EventPosition, &PositionUpdate{TraderID: traderID.String(), Position: c})
}

// persistFill writes every row a fill touched in one transaction. The
// aggressor is not written here; it only reaches the store if it ends up
// resting. A fully filled resting order is deleted in the same transaction.
func (e *Engine) persistFill(trade *types.Trade, resting *types.Order, buyerRes, sellerRes position.Result) {
	if e.store == nil {
		return
	}
	rec := &db.FillRecord{
		Trade:   trade,
		Traders: []*types.Trader{e.traders[trade.BuyerID], e.traders[trade.SellerID]},
		Stats:   e.marketStatsLocked(),
	}
	if resting.Status == types.OrderStatusFilled {
		rec.DeletedOrders = append(rec.DeletedOrders, resting.ID)
	} else {
		rec.Orders = append(rec.Orders, resting)
	}
	for id, res := range map[uuid.UUID]position.Result{
		trade.BuyerID:  buyerRes,
		trade.SellerID: sellerRes,
	} {
		if res.Position != nil {
			rec.Positions = append(rec.Positions, res.Position)
		} else {
			rec.ClosedPositions = append(rec.ClosedPositions, id)
		}
	}
	if err := e.store.ApplyFill(rec); err != nil {
		e.log.Error("persist fill", "trade", trade.ID, "error", err)
	}
}

func (e *Engine) persistOrder(o *types.Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(o); err != nil {
		e.log.Error("persist order", "order", o.ID, "error", err)
	}
}

func (e *Engine) deleteOrder(id uuid.UUID) {
	if e.store == nil {
		return
	}
	if err := e.store.DeleteOrder(id); err != nil {
		e.log.Error("delete order", "order", id, "error", err)
	}
}

func positionSize(p *types.Position) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Size
}

// CancelOrder removes a resting order. Only the owner may cancel, and only
// while the order still rests in the book.
func (e *Engine) CancelOrder(traderID, orderID uuid.UUID) (*types.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resting := e.book.Get(orderID)
	if resting == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if resting.TraderID != traderID {
		return nil, fmt.Errorf("order %s owned by another trader: %w", orderID, ErrNotFound)
	}

	e.book.Remove(orderID)
	resting.Status = types.OrderStatusCancelled
	resting.UpdatedAt = time.Now().UTC()
	e.deleteOrder(orderID)

	c := *resting
	e.emit(EventOrder, &c)
	e.emit(EventOrderBook, e.book.Snapshot(0))
	e.log.Info("order cancelled", "order", orderID)
	return &c, nil
}

// ClosePosition flattens the trader's position with a market order on the
// opposite side. The lock is held from the size read through the matching,
// so a concurrent fill or forced close cannot change the position between
// the two; closing a stale size could flip the trader instead of
// flattening them.
func (e *Engine) ClosePosition(traderID uuid.UUID) (*types.Order, []*types.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[traderID]
	if !ok {
		return nil, nil, fmt.Errorf("position %s: %w", traderID, ErrNotFound)
	}
	side := types.SideSell
	if pos.IsShort() {
		side = types.SideBuy
	}
	return e.submitLocked(OrderRequest{
		TraderID: traderID,
		Side:     side,
		Type:     types.OrderTypeMarket,
		Size:     pos.Size.Abs(),
		Leverage: pos.Leverage,
	})
}
