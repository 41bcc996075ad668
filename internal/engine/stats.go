package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rindex-exchange/pkg/types"
)

// GetMarketStats returns the on-demand market summary.
func (e *Engine) GetMarketStats() *types.MarketStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.marketStatsLocked()
}

func (e *Engine) marketStatsLocked() *types.MarketStats {
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	stats := &types.MarketStats{
		Instrument: types.RIndexSymbol,
		LastPrice:  e.markPriceLocked(),
		MarkPrice:  e.markPriceLocked(),
		High24h:    decimal.Zero,
		Low24h:     decimal.Zero,
		Volume24h:  decimal.Zero,
		Timestamp:  now,
	}
	for _, t := range e.trades {
		if t.Timestamp.Before(cutoff) {
			break // newest first, the rest are older
		}
		if stats.High24h.IsZero() || t.Price.GreaterThan(stats.High24h) {
			stats.High24h = t.Price
		}
		if stats.Low24h.IsZero() || t.Price.LessThan(stats.Low24h) {
			stats.Low24h = t.Price
		}
		stats.Volume24h = stats.Volume24h.Add(t.Size.Mul(t.Price))
	}
	for _, p := range e.positions {
		stats.OpenInterest = stats.OpenInterest.Add(p.Size.Abs())
	}
	if e.fund != nil {
		stats.InsuranceFund = e.fund.Balance()
	}
	return stats
}

// GetOpenInterest returns the aggregate exposure breakdown.
func (e *Engine) GetOpenInterest() *types.OpenInterest {
	e.mu.RLock()
	defer e.mu.RUnlock()

	oi := &types.OpenInterest{
		Instrument: types.RIndexSymbol,
		Timestamp:  time.Now().UTC(),
	}
	for _, p := range e.positions {
		oi.TotalOI = oi.TotalOI.Add(p.Size.Abs())
		if p.IsLong() {
			oi.LongPositions++
		} else {
			oi.ShortPositions++
		}
	}
	return oi
}

// GetCandles returns up to limit OHLCV buckets for the interval, oldest
// first, built from the in-memory trade history.
func (e *Engine) GetCandles(interval types.CandleInterval, limit int) ([]*types.Candle, error) {
	return e.GetCandlesRange(interval, time.Time{}, time.Time{}, limit)
}

// GetCandlesRange returns candles whose open time falls in [start, end],
// oldest first. Zero start or end leaves that bound open; limit <= 0 means
// all. Buckets align to UTC truncation of the interval, so daily candles
// open at 00:00 UTC.
func (e *Engine) GetCandlesRange(interval types.CandleInterval, start, end time.Time, limit int) ([]*types.Candle, error) {
	width, ok := interval.Duration()
	if !ok {
		return nil, fmt.Errorf("interval %q: %w", interval, ErrInvalidOrder)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	type bucket struct {
		candle   *types.Candle
		firstTS  time.Time
		lastTS   time.Time
	}
	buckets := map[int64]*bucket{}

	for _, t := range e.trades {
		if !start.IsZero() && t.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && t.Timestamp.After(end) {
			continue
		}
		open := t.Timestamp.UTC().Truncate(width)
		b, ok := buckets[open.Unix()]
		if !ok {
			b = &bucket{
				candle: &types.Candle{
					Instrument: types.RIndexSymbol,
					Interval:   interval,
					OpenTime:   open,
					CloseTime:  open.Add(width),
					Open:       t.Price,
					High:       t.Price,
					Low:        t.Price,
					Close:      t.Price,
				},
				firstTS: t.Timestamp,
				lastTS:  t.Timestamp,
			}
			buckets[open.Unix()] = b
		}
		c := b.candle
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		// the open belongs to the earliest trade, the close to the latest
		if t.Timestamp.Before(b.firstTS) {
			b.firstTS = t.Timestamp
			c.Open = t.Price
		}
		if !t.Timestamp.Before(b.lastTS) {
			b.lastTS = t.Timestamp
			c.Close = t.Price
		}
		c.Volume = c.Volume.Add(t.Size)
		c.TradeCount++
	}

	out := make([]*types.Candle, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.candle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
