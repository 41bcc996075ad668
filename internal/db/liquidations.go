package db

import (
	"fmt"

	"rindex-exchange/pkg/types"
)

const liquidationCols = `id, trader_id, instrument, side, size, entry_price, liquidation_price, mark_price, leverage, loss, insurance_fund_hit, timestamp`

// SaveLiquidation inserts a liquidation record. Append-only.
func (s *Store) SaveLiquidation(l *types.Liquidation) error {
	query := `INSERT INTO liquidations (` + liquidationCols + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	hit := 0
	if l.InsuranceFundHit {
		hit = 1
	}
	_, err := s.db.Exec(query,
		l.ID.String(),
		l.TraderID.String(),
		l.Instrument,
		string(l.Side),
		l.Size.String(),
		l.EntryPrice.String(),
		l.LiquidationPrice.String(),
		l.MarkPrice.String(),
		l.Leverage,
		l.Loss.String(),
		hit,
		l.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save liquidation %s: %w", l.ID, err)
	}
	return nil
}

// GetRecentLiquidations retrieves the newest liquidations first.
func (s *Store) GetRecentLiquidations(instrument string, limit int) ([]*types.Liquidation, error) {
	query := `SELECT ` + liquidationCols + ` FROM liquidations WHERE instrument = ? ORDER BY timestamp DESC, id LIMIT ?`
	rows, err := s.db.Query(query, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("list liquidations: %w", err)
	}
	defer rows.Close()

	var liquidations []*types.Liquidation
	for rows.Next() {
		var l types.Liquidation
		var idStr, traderStr, sideStr, sizeStr, entryStr, liqStr, markStr, lossStr string
		var hit int
		if err := rows.Scan(&idStr, &traderStr, &l.Instrument, &sideStr, &sizeStr, &entryStr, &liqStr, &markStr, &l.Leverage, &lossStr, &hit, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan liquidation: %w", err)
		}
		var p rowParser
		l.ID = p.id(idStr)
		l.TraderID = p.id(traderStr)
		l.Side = types.Side(sideStr)
		l.Size = p.dec(sizeStr)
		l.EntryPrice = p.dec(entryStr)
		l.LiquidationPrice = p.dec(liqStr)
		l.MarkPrice = p.dec(markStr)
		l.Loss = p.dec(lossStr)
		l.InsuranceFundHit = hit == 1
		if p.err != nil {
			return nil, fmt.Errorf("liquidation row: %w", p.err)
		}
		liquidations = append(liquidations, &l)
	}
	return liquidations, rows.Err()
}
