package db

import (
	"fmt"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

const positionCols = `trader_id, instrument, size, entry_price, leverage, margin, unrealized_pnl, realized_pnl, liquidation_price, updated_at`

// SavePosition inserts or updates a position.
func (s *Store) SavePosition(p *types.Position) error {
	return savePosition(s.db, p)
}

func savePosition(e execer, p *types.Position) error {
	query := `
	INSERT INTO positions (` + positionCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(trader_id, instrument) DO UPDATE SET
		size = excluded.size,
		entry_price = excluded.entry_price,
		leverage = excluded.leverage,
		margin = excluded.margin,
		unrealized_pnl = excluded.unrealized_pnl,
		realized_pnl = excluded.realized_pnl,
		liquidation_price = excluded.liquidation_price,
		updated_at = excluded.updated_at
	`
	_, err := e.Exec(query,
		p.TraderID.String(),
		p.Instrument,
		p.Size.String(),
		p.EntryPrice.String(),
		p.Leverage,
		p.Margin.String(),
		p.UnrealizedPnL.String(),
		p.RealizedPnL.String(),
		p.LiquidationPrice.String(),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.TraderID, err)
	}
	return nil
}

// DeletePosition removes a position. Flat positions are never stored.
func (s *Store) DeletePosition(traderID uuid.UUID, instrument string) error {
	return deletePosition(s.db, traderID, instrument)
}

func deletePosition(e execer, traderID uuid.UUID, instrument string) error {
	_, err := e.Exec(`DELETE FROM positions WHERE trader_id = ? AND instrument = ?`, traderID.String(), instrument)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", traderID, err)
	}
	return nil
}

// GetAllPositions retrieves every open position for an instrument.
func (s *Store) GetAllPositions(instrument string) ([]*types.Position, error) {
	rows, err := s.db.Query(`SELECT `+positionCols+` FROM positions WHERE instrument = ?`, instrument)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []*types.Position
	for rows.Next() {
		var p types.Position
		var traderIDStr, sizeStr, entryStr, marginStr, upnlStr, rpnlStr, liqStr string
		if err := rows.Scan(&traderIDStr, &p.Instrument, &sizeStr, &entryStr, &p.Leverage, &marginStr, &upnlStr, &rpnlStr, &liqStr, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		var rp rowParser
		p.TraderID = rp.id(traderIDStr)
		p.Size = rp.dec(sizeStr)
		p.EntryPrice = rp.dec(entryStr)
		p.Margin = rp.dec(marginStr)
		p.UnrealizedPnL = rp.dec(upnlStr)
		p.RealizedPnL = rp.dec(rpnlStr)
		p.LiquidationPrice = rp.dec(liqStr)
		if rp.err != nil {
			return nil, fmt.Errorf("position row: %w", rp.err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
