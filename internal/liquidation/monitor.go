// Package liquidation watches open positions and force-closes the ones
// whose liquidation price the mark has crossed. The insurance fund it
// settles against also lives here.
package liquidation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/pkg/types"
)

// Exchange is the slice of the engine the monitor needs: a price, the open
// positions, and the ability to force-close one. The engine re-checks the
// trigger under its own lock, so a stale scan result is harmless.
type Exchange interface {
	MarkPrice() decimal.Decimal
	OpenPositions() []*types.Position
	LiquidatePosition(traderID uuid.UUID) (*types.Liquidation, error)
}

// Monitor periodically scans for liquidatable positions.
type Monitor struct {
	exchange Exchange
	interval time.Duration
	log      *slog.Logger
}

// NewMonitor builds a monitor scanning at the given interval.
func NewMonitor(exchange Exchange, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		exchange: exchange,
		interval: interval,
		log:      log.With("component", "liquidation"),
	}
}

// Run ticks until ctx is cancelled. An in-flight sweep finishes before
// return, so shutdown never abandons a half-settled liquidation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("liquidation monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("liquidation monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep checks every open position against the current mark. Positions are
// visited in trader-id order so two positions triggered by the same tick
// always settle in the same order.
func (m *Monitor) sweep() {
	mark := m.exchange.MarkPrice()
	if mark.IsZero() {
		return
	}

	positions := m.exchange.OpenPositions()
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].TraderID.String() < positions[j].TraderID.String()
	})

	for _, pos := range positions {
		if !triggered(pos, mark) {
			continue
		}
		liq, err := m.exchange.LiquidatePosition(pos.TraderID)
		if err != nil {
			// the position changed between scan and close
			m.log.Debug("liquidation skipped", "trader", pos.TraderID, "error", err)
			continue
		}
		m.log.Info("liquidated",
			"trader", pos.TraderID,
			"side", string(liq.Side),
			"size", liq.Size,
			"mark", mark,
			"loss", liq.Loss)
	}
}

// triggered mirrors the engine's check against the stored liquidation
// price; the engine re-verifies before settling.
func triggered(pos *types.Position, mark decimal.Decimal) bool {
	if pos.Size.IsZero() {
		return false
	}
	if pos.IsLong() {
		return mark.LessThanOrEqual(pos.LiquidationPrice)
	}
	return mark.GreaterThanOrEqual(pos.LiquidationPrice)
}
