package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"rindex-exchange/internal/position"
	"rindex-exchange/pkg/types"
)

// LiquidatePosition force-closes a trader's position at the current mark
// price. The trigger condition is re-checked under the engine lock, so a
// position that recovered between the monitor's scan and this call is left
// alone (returns ErrNotFound).
//
// Settlement: the trader is credited margin plus P&L; the insurance fund
// takes the margin surplus when the loss was covered, and pays the
// shortfall (down to a zero balance) when it was not.
func (e *Engine) LiquidatePosition(traderID uuid.UUID) (*types.Liquidation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[traderID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", traderID, ErrNotFound)
	}
	mark := e.markPriceLocked()
	if !e.calc.ShouldLiquidate(pos, mark) {
		return nil, fmt.Errorf("position %s no longer triggered: %w", traderID, ErrNotFound)
	}

	pnl := position.UnrealizedPnL(pos, mark)
	loss := pnl.Neg()

	side := types.SideSell
	if pos.IsLong() {
		side = types.SideBuy
	}
	liq := &types.Liquidation{
		ID:               uuid.New(),
		TraderID:         traderID,
		Instrument:       pos.Instrument,
		Side:             side,
		Size:             pos.Size.Abs(),
		EntryPrice:       pos.EntryPrice,
		LiquidationPrice: pos.LiquidationPrice,
		MarkPrice:        mark,
		Leverage:         pos.Leverage,
		Loss:             loss,
		Timestamp:        time.Now().UTC(),
	}

	if e.fund != nil {
		if loss.GreaterThan(pos.Margin) {
			paid, depleted := e.fund.Debit(loss.Sub(pos.Margin))
			liq.InsuranceFundHit = true
			if depleted {
				e.log.Warn("insurance fund depleted",
					"trader", traderID, "shortfall", loss.Sub(pos.Margin), "paid", paid)
			}
		} else {
			e.fund.Credit(pos.Margin.Sub(loss))
		}
	}

	if t, ok := e.traders[traderID]; ok {
		t.Balance = t.Balance.Add(pos.Margin).Add(pnl)
		t.TotalPnL = t.TotalPnL.Add(pnl)
		e.persistTrader(t)
	}

	delete(e.positions, traderID)
	e.pushLiquidation(liq)

	if e.store != nil {
		if err := e.store.DeletePosition(traderID, pos.Instrument); err != nil {
			e.log.Error("delete liquidated position", "trader", traderID, "error", err)
		}
		if err := e.store.SaveLiquidation(liq); err != nil {
			e.log.Error("persist liquidation", "liquidation", liq.ID, "error", err)
		}
		if err := e.store.SaveMarketStats(e.marketStatsLocked()); err != nil {
			e.log.Error("persist market stats", "error", err)
		}
	}

	e.emitPosition(traderID, nil)
	liqCopy := *liq
	e.emit(EventLiquidation, &liqCopy)

	e.log.Info("position liquidated",
		"trader", traderID,
		"side", string(side),
		"size", liq.Size,
		"mark", mark,
		"leverage", pos.Leverage,
		"loss", loss,
		"fund_hit", liq.InsuranceFundHit)

	return &liqCopy, nil
}
