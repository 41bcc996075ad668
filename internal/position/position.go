// Package position implements the position arithmetic of the exchange.
//
// Everything here is a pure function over decimals so the matching engine
// and the liquidation monitor share one source of truth for entry prices,
// realized P&L, margin, and liquidation levels.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"rindex-exchange/internal/config"
	"rindex-exchange/pkg/types"
)

// Result describes the outcome of applying one fill to a position.
// Position is nil when the fill left the trader flat.
type Result struct {
	Position    *types.Position
	RealizedPnL decimal.Decimal
	Effect      types.PositionEffect
}

// Effect classifies what a signed size delta does to a position of oldSize.
// Zero or same-sign positions open (or add); opposite signs close, whether
// the delta reduces, flattens, or flips.
func Effect(oldSize, delta decimal.Decimal) types.PositionEffect {
	if oldSize.IsZero() || oldSize.Sign() == delta.Sign() {
		return types.EffectOpen
	}
	return types.EffectClose
}

// Apply folds a signed fill of `delta` at `price` into pos and returns the
// new state. pos may be nil (flat trader). leverage is the order's leverage;
// it is adopted when the fill opens from flat or flips, and kept otherwise.
//
// Adds recompute the entry as the size-weighted average of old and new.
// Reductions realize P&L on the closed portion and keep the entry. A flip
// realizes P&L on the whole old position and opens the remainder at the
// fill price with the order's leverage.
func Apply(pos *types.Position, delta, price decimal.Decimal, leverage int, now time.Time) Result {
	if pos == nil || pos.Size.IsZero() {
		return Result{
			Position: newPosition(pos, delta, price, leverage, now),
			Effect:   types.EffectOpen,
		}
	}

	if pos.Size.Sign() == delta.Sign() {
		oldNotional := pos.Size.Abs().Mul(pos.EntryPrice)
		addNotional := delta.Abs().Mul(price)
		newSize := pos.Size.Add(delta)
		next := *pos
		next.Size = newSize
		next.EntryPrice = oldNotional.Add(addNotional).Div(newSize.Abs())
		next.Margin = RequiredMargin(next.Size, next.EntryPrice, next.Leverage)
		next.UpdatedAt = now
		return Result{Position: &next, Effect: types.EffectOpen}
	}

	closed := decimal.Min(pos.Size.Abs(), delta.Abs())
	pnl := realized(pos.Size, pos.EntryPrice, price, closed)
	newSize := pos.Size.Add(delta)

	if newSize.IsZero() {
		return Result{RealizedPnL: pnl, Effect: types.EffectClose}
	}

	if newSize.Sign() == pos.Size.Sign() {
		// plain reduction, entry unchanged
		next := *pos
		next.Size = newSize
		next.RealizedPnL = pos.RealizedPnL.Add(pnl)
		next.Margin = RequiredMargin(next.Size, next.EntryPrice, next.Leverage)
		next.UpdatedAt = now
		return Result{Position: &next, RealizedPnL: pnl, Effect: types.EffectClose}
	}

	// flip: the remainder is a fresh position at the fill price
	flipped := newPosition(pos, newSize, price, leverage, now)
	flipped.RealizedPnL = pos.RealizedPnL.Add(pnl)
	return Result{Position: flipped, RealizedPnL: pnl, Effect: types.EffectClose}
}

func newPosition(prev *types.Position, size, price decimal.Decimal, leverage int, now time.Time) *types.Position {
	p := &types.Position{
		Instrument: types.RIndexSymbol,
		Size:       size,
		EntryPrice: price,
		Leverage:   leverage,
		Margin:     RequiredMargin(size, price, leverage),
		UpdatedAt:  now,
	}
	if prev != nil {
		p.TraderID = prev.TraderID
		p.Instrument = prev.Instrument
	}
	return p
}

// realized returns the P&L from closing `closed` units of a position of
// oldSize at exitPrice. Longs profit when the price rose, shorts when it
// fell.
func realized(oldSize, entry, exitPrice, closed decimal.Decimal) decimal.Decimal {
	if oldSize.IsPositive() {
		return exitPrice.Sub(entry).Mul(closed)
	}
	return entry.Sub(exitPrice).Mul(closed)
}

// UnrealizedPnL values an open position against a mark price.
func UnrealizedPnL(pos *types.Position, mark decimal.Decimal) decimal.Decimal {
	if pos == nil || pos.Size.IsZero() {
		return decimal.Zero
	}
	return realized(pos.Size, pos.EntryPrice, mark, pos.Size.Abs())
}

// RequiredMargin is the collateral backing a position: notional over
// leverage.
func RequiredMargin(size, entry decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		return decimal.Zero
	}
	return size.Abs().Mul(entry).Div(decimal.NewFromInt(int64(leverage)))
}

// LiquidationPrice returns the mark price at which a position is force
// closed. The distance from entry shrinks with leverage and with the
// maintenance margin of the position's tier.
func LiquidationPrice(entry decimal.Decimal, leverage int, long bool, margins config.MaintenanceMargins) decimal.Decimal {
	if leverage <= 0 {
		return decimal.Zero
	}
	maint := margins.ForLeverage(leverage)
	distance := entry.Div(decimal.NewFromInt(int64(leverage))).Mul(decimal.NewFromInt(1).Sub(maint))
	if long {
		return entry.Sub(distance)
	}
	return entry.Add(distance)
}

// Calculator binds the configured maintenance-margin tiers so callers can
// price liquidations without threading the table through every call.
type Calculator struct {
	Margins config.MaintenanceMargins
}

// NewCalculator returns a Calculator over the configured tier table.
func NewCalculator(m config.MaintenanceMargins) Calculator {
	return Calculator{Margins: m}
}

// LiquidationPrice computes the liquidation price of an open position.
func (c Calculator) LiquidationPrice(pos *types.Position) decimal.Decimal {
	return LiquidationPrice(pos.EntryPrice, pos.Leverage, pos.IsLong(), c.Margins)
}

// ShouldLiquidate reports whether mark has crossed the position's
// liquidation price. Longs liquidate when the mark falls to or below it,
// shorts when the mark rises to or above it. A zero mark never triggers.
func (c Calculator) ShouldLiquidate(pos *types.Position, mark decimal.Decimal) bool {
	if pos == nil || pos.Size.IsZero() || mark.IsZero() {
		return false
	}
	liq := c.LiquidationPrice(pos)
	if pos.IsLong() {
		return mark.LessThanOrEqual(liq)
	}
	return mark.GreaterThanOrEqual(liq)
}
