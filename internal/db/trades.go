package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

const tradeCols = `id, instrument, price, size, buyer_id, seller_id, buyer_order_id, seller_order_id, buyer_leverage, seller_leverage, buyer_effect, seller_effect, buyer_new_position, seller_new_position, aggressor_side, timestamp`

// SaveTrade inserts a trade. Trades are append-only.
func (s *Store) SaveTrade(t *types.Trade) error {
	return saveTrade(s.db, t)
}

func saveTrade(e execer, t *types.Trade) error {
	query := `INSERT INTO trades (` + tradeCols + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := e.Exec(query,
		t.ID.String(),
		t.Instrument,
		t.Price.String(),
		t.Size.String(),
		t.BuyerID.String(),
		t.SellerID.String(),
		t.BuyerOrderID.String(),
		t.SellerOrderID.String(),
		t.BuyerLeverage,
		t.SellerLeverage,
		string(t.BuyerEffect),
		string(t.SellerEffect),
		t.BuyerNewPosition.String(),
		t.SellerNewPosition.String(),
		string(t.AggressorSide),
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", t.ID, err)
	}
	return nil
}

func scanTrade(row interface{ Scan(...any) error }) (*types.Trade, error) {
	var t types.Trade
	var idStr, buyerStr, sellerStr, buyerOrdStr, sellerOrdStr string
	var priceStr, sizeStr, buyerEffStr, sellerEffStr, buyerPosStr, sellerPosStr, aggStr string
	err := row.Scan(&idStr, &t.Instrument, &priceStr, &sizeStr, &buyerStr, &sellerStr,
		&buyerOrdStr, &sellerOrdStr, &t.BuyerLeverage, &t.SellerLeverage,
		&buyerEffStr, &sellerEffStr, &buyerPosStr, &sellerPosStr, &aggStr, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	var p rowParser
	t.ID = p.id(idStr)
	t.BuyerID = p.id(buyerStr)
	t.SellerID = p.id(sellerStr)
	t.BuyerOrderID = p.id(buyerOrdStr)
	t.SellerOrderID = p.id(sellerOrdStr)
	t.Price = p.dec(priceStr)
	t.Size = p.dec(sizeStr)
	t.BuyerEffect = types.PositionEffect(buyerEffStr)
	t.SellerEffect = types.PositionEffect(sellerEffStr)
	t.BuyerNewPosition = p.dec(buyerPosStr)
	t.SellerNewPosition = p.dec(sellerPosStr)
	t.AggressorSide = types.Side(aggStr)
	if p.err != nil {
		return nil, p.err
	}
	return &t, nil
}

// GetRecentTrades retrieves the newest trades first.
func (s *Store) GetRecentTrades(instrument string, limit int) ([]*types.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades WHERE instrument = ? ORDER BY timestamp DESC, id LIMIT ?`
	rows, err := s.db.Query(query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetTraderTrades retrieves the newest trades a trader took part in.
func (s *Store) GetTraderTrades(traderID uuid.UUID, instrument string, limit int) ([]*types.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades
	WHERE instrument = ? AND (buyer_id = ? OR seller_id = ?)
	ORDER BY timestamp DESC, id LIMIT ?`
	rows, err := s.db.Query(query, instrument, traderID.String(), traderID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list trader trades: %w", err)
	}
	defer rows.Close()

	var trades []*types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetTradesSince retrieves trades in [since, now], oldest first. Used to
// rebuild candles and trailing stats without loading the whole table.
func (s *Store) GetTradesSince(instrument string, since time.Time) ([]*types.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades
	WHERE instrument = ? AND timestamp >= ?
	ORDER BY timestamp, id`
	rows, err := s.db.Query(query, instrument, since)
	if err != nil {
		return nil, fmt.Errorf("list trades since: %w", err)
	}
	defer rows.Close()

	var trades []*types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
