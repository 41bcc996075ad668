package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

const traderCols = `id, username, type, balance, total_pnl, trade_count, max_leverage_used, created_at`

// SaveTrader inserts or updates a trader.
func (s *Store) SaveTrader(t *types.Trader) error {
	return saveTrader(s.db, t)
}

func saveTrader(e execer, t *types.Trader) error {
	query := `
	INSERT INTO traders (` + traderCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		username = excluded.username,
		balance = excluded.balance,
		total_pnl = excluded.total_pnl,
		trade_count = excluded.trade_count,
		max_leverage_used = excluded.max_leverage_used
	`
	_, err := e.Exec(query,
		t.ID.String(),
		t.Username,
		string(t.Type),
		t.Balance.String(),
		t.TotalPnL.String(),
		t.TradeCount,
		t.MaxLeverageUsed,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save trader %s: %w", t.ID, err)
	}
	return nil
}

func scanTrader(row interface{ Scan(...any) error }) (*types.Trader, error) {
	var t types.Trader
	var idStr, typeStr, balanceStr, pnlStr string
	err := row.Scan(&idStr, &t.Username, &typeStr, &balanceStr, &pnlStr, &t.TradeCount, &t.MaxLeverageUsed, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	var p rowParser
	t.ID = p.id(idStr)
	t.Type = types.TraderType(typeStr)
	t.Balance = p.dec(balanceStr)
	t.TotalPnL = p.dec(pnlStr)
	if p.err != nil {
		return nil, p.err
	}
	return &t, nil
}

// GetTrader retrieves a trader by id. Returns (nil, nil) when absent.
func (s *Store) GetTrader(id uuid.UUID) (*types.Trader, error) {
	row := s.db.QueryRow(`SELECT `+traderCols+` FROM traders WHERE id = ?`, id.String())
	t, err := scanTrader(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trader %s: %w", id, err)
	}
	return t, nil
}

// GetTraderByUsername retrieves a trader by username. Returns (nil, nil)
// when absent.
func (s *Store) GetTraderByUsername(username string) (*types.Trader, error) {
	row := s.db.QueryRow(`SELECT `+traderCols+` FROM traders WHERE username = ?`, username)
	t, err := scanTrader(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trader %q: %w", username, err)
	}
	return t, nil
}

// GetAllTraders retrieves every trader, oldest first.
func (s *Store) GetAllTraders() ([]*types.Trader, error) {
	rows, err := s.db.Query(`SELECT ` + traderCols + ` FROM traders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list traders: %w", err)
	}
	defer rows.Close()

	var traders []*types.Trader
	for rows.Next() {
		t, err := scanTrader(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trader: %w", err)
		}
		traders = append(traders, t)
	}
	return traders, rows.Err()
}
