// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the exchange: traders, orders,
// positions, trades, liquidations, and the derived market-data shapes. It has
// no dependencies on internal packages, so it can be imported by any layer.
// Every price, size, and money amount is a shopspring decimal; floats never
// appear in the core.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RIndexSymbol is the single synthetic instrument the exchange trades.
const RIndexSymbol = "R.index"

// Side represents the direction of an order: buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus is the current state of an order. Filled and cancelled are
// terminal; only pending and partial orders may rest in the book.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// TraderType identifies the kind of participant.
type TraderType string

const (
	TraderTypeHuman       TraderType = "human"
	TraderTypeBot         TraderType = "bot"
	TraderTypeMarketMaker TraderType = "market_maker"
)

// PositionEffect classifies what a fill did to a trader's position.
type PositionEffect string

const (
	EffectOpen        PositionEffect = "open"        // created or added to a position
	EffectClose       PositionEffect = "close"       // reduced or flipped voluntarily
	EffectLiquidation PositionEffect = "liquidation" // forced closure
)

// LeverageTier buckets leverage for maintenance-margin purposes.
type LeverageTier string

const (
	TierConservative LeverageTier = "conservative" // 1-10x
	TierModerate     LeverageTier = "moderate"     // 11-50x
	TierAggressive   LeverageTier = "aggressive"   // 51-100x
	TierDegen        LeverageTier = "degen"        // 101x+
)

// TierFor returns the leverage tier for a given leverage.
func TierFor(leverage int) LeverageTier {
	switch {
	case leverage <= 10:
		return TierConservative
	case leverage <= 50:
		return TierModerate
	case leverage <= 100:
		return TierAggressive
	default:
		return TierDegen
	}
}

// Trader is a market participant. Everything here is public by design,
// including the highest leverage the trader has ever used.
type Trader struct {
	ID              uuid.UUID       `json:"id"`
	Username        string          `json:"username"`
	Type            TraderType      `json:"type"`
	Balance         decimal.Decimal `json:"balance"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TradeCount      int64           `json:"trade_count"`
	MaxLeverageUsed int             `json:"max_leverage_used"` // monotonically non-decreasing
	CreatedAt       time.Time       `json:"created_at"`
}

// Order is a trading order. Price is unused for market orders.
type Order struct {
	ID         uuid.UUID       `json:"id"`
	TraderID   uuid.UUID       `json:"trader_id"`
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	FilledSize decimal.Decimal `json:"filled_size"`
	Leverage   int             `json:"leverage"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RemainingSize returns the unfilled quantity.
func (o *Order) RemainingSize() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// Trade is an executed fill. Immutable once created. Both parties, their
// order ids, their leverage, and the effect on each position are public.
type Trade struct {
	ID         uuid.UUID       `json:"id"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Timestamp  time.Time       `json:"timestamp"`

	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	BuyerOrderID  uuid.UUID `json:"buyer_order_id"`
	SellerOrderID uuid.UUID `json:"seller_order_id"`

	BuyerLeverage  int `json:"buyer_leverage"`
	SellerLeverage int `json:"seller_leverage"`

	BuyerEffect  PositionEffect `json:"buyer_effect"`
	SellerEffect PositionEffect `json:"seller_effect"`

	BuyerNewPosition  decimal.Decimal `json:"buyer_new_position"`
	SellerNewPosition decimal.Decimal `json:"seller_new_position"`

	AggressorSide Side `json:"aggressor_side"`
}

// Position is a trader's open position in one instrument. Positive size is
// long, negative is short. Flat positions are deleted, never stored.
type Position struct {
	TraderID         uuid.UUID       `json:"trader_id"`
	Instrument       string          `json:"instrument"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Leverage         int             `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool { return p.Size.IsPositive() }

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool { return p.Size.IsNegative() }

// Tier returns the leverage tier of the position.
func (p *Position) Tier() LeverageTier { return TierFor(p.Leverage) }

// Liquidation records a forced closure. Side is the side of the position
// that was closed: buy means a long was liquidated, sell means a short.
type Liquidation struct {
	ID               uuid.UUID       `json:"id"`
	TraderID         uuid.UUID       `json:"trader_id"`
	Instrument       string          `json:"instrument"`
	Side             Side            `json:"side"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	Leverage         int             `json:"leverage"`
	Loss             decimal.Decimal `json:"loss"` // positive = the trader lost this much
	InsuranceFundHit bool            `json:"insurance_fund_hit"`
	Timestamp        time.Time       `json:"timestamp"`
}

// InsuranceFund is the singleton fund that absorbs liquidation shortfalls.
// TotalIn and TotalOut only ever grow; Balance never goes negative.
type InsuranceFund struct {
	Balance  decimal.Decimal `json:"balance"`
	TotalIn  decimal.Decimal `json:"total_in"`
	TotalOut decimal.Decimal `json:"total_out"`
}

// BookLevel is one aggregated price level of the order book.
type BookLevel struct {
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	OrderCount int             `json:"order_count"`
}

// BookSnapshot is a point-in-time view of the order book.
// Bids are sorted high to low, asks low to high.
type BookSnapshot struct {
	Instrument string      `json:"instrument"`
	Bids       []BookLevel `json:"bids"`
	Asks       []BookLevel `json:"asks"`
	Timestamp  time.Time   `json:"timestamp"`
}

// OpenInterest is the aggregate exposure breakdown across open positions.
type OpenInterest struct {
	Instrument     string          `json:"instrument"`
	TotalOI        decimal.Decimal `json:"total_oi"`
	LongPositions  int64           `json:"long_positions"`
	ShortPositions int64           `json:"short_positions"`
	Timestamp      time.Time       `json:"timestamp"`
}

// MarketStats is the on-demand market summary.
type MarketStats struct {
	Instrument    string          `json:"instrument"`
	LastPrice     decimal.Decimal `json:"last_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	High24h       decimal.Decimal `json:"high_24h"`
	Low24h        decimal.Decimal `json:"low_24h"`
	Volume24h     decimal.Decimal `json:"volume_24h"` // sum of size*price
	OpenInterest  decimal.Decimal `json:"open_interest"`
	InsuranceFund decimal.Decimal `json:"insurance_fund"`
	Timestamp     time.Time       `json:"timestamp"`
}

// CandleInterval is a supported OHLCV bucket width.
type CandleInterval string

const (
	Interval1m  CandleInterval = "1m"
	Interval5m  CandleInterval = "5m"
	Interval15m CandleInterval = "15m"
	Interval1h  CandleInterval = "1h"
	Interval4h  CandleInterval = "4h"
	Interval1d  CandleInterval = "1d"
)

// Duration returns the bucket width, or false for an unknown interval.
func (i CandleInterval) Duration() (time.Duration, bool) {
	switch i {
	case Interval1m:
		return time.Minute, true
	case Interval5m:
		return 5 * time.Minute, true
	case Interval15m:
		return 15 * time.Minute, true
	case Interval1h:
		return time.Hour, true
	case Interval4h:
		return 4 * time.Hour, true
	case Interval1d:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Candle is one OHLCV bucket. Open is the price of the earliest trade in the
// bucket, Close the price of the latest. Daily candles align to 00:00 UTC.
type Candle struct {
	Instrument string          `json:"instrument"`
	Interval   CandleInterval  `json:"interval"`
	OpenTime   time.Time       `json:"open_time"`
	CloseTime  time.Time       `json:"close_time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int64           `json:"trade_count"`
}
