package db

import (
	"database/sql"
	"fmt"
	"time"

	"rindex-exchange/pkg/types"
)

// SaveMarketStats upserts the market summary so restarts can serve stats
// without replaying the trade log.
func (s *Store) SaveMarketStats(stats *types.MarketStats) error {
	return saveMarketStats(s.db, stats)
}

func saveMarketStats(e execer, stats *types.MarketStats) error {
	query := `
	INSERT INTO market_stats (instrument, last_price, mark_price, high_24h, low_24h, volume_24h, open_interest, insurance_fund, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(instrument) DO UPDATE SET
		last_price = excluded.last_price,
		mark_price = excluded.mark_price,
		high_24h = excluded.high_24h,
		low_24h = excluded.low_24h,
		volume_24h = excluded.volume_24h,
		open_interest = excluded.open_interest,
		insurance_fund = excluded.insurance_fund,
		updated_at = excluded.updated_at
	`
	_, err := e.Exec(query,
		stats.Instrument,
		stats.LastPrice.String(),
		stats.MarkPrice.String(),
		stats.High24h.String(),
		stats.Low24h.String(),
		stats.Volume24h.String(),
		stats.OpenInterest.String(),
		stats.InsuranceFund.String(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save market stats: %w", err)
	}
	return nil
}

// GetMarketStats retrieves the persisted summary. Returns (nil, nil) when
// the instrument has never traded.
func (s *Store) GetMarketStats(instrument string) (*types.MarketStats, error) {
	query := `SELECT instrument, last_price, mark_price, high_24h, low_24h, volume_24h, open_interest, insurance_fund, updated_at FROM market_stats WHERE instrument = ?`
	row := s.db.QueryRow(query, instrument)

	var stats types.MarketStats
	var lastStr, markStr, highStr, lowStr, volStr, oiStr, fundStr string
	err := row.Scan(&stats.Instrument, &lastStr, &markStr, &highStr, &lowStr, &volStr, &oiStr, &fundStr, &stats.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get market stats: %w", err)
	}
	var p rowParser
	stats.LastPrice = p.dec(lastStr)
	stats.MarkPrice = p.dec(markStr)
	stats.High24h = p.dec(highStr)
	stats.Low24h = p.dec(lowStr)
	stats.Volume24h = p.dec(volStr)
	stats.OpenInterest = p.dec(oiStr)
	stats.InsuranceFund = p.dec(fundStr)
	if p.err != nil {
		return nil, fmt.Errorf("market stats row: %w", p.err)
	}
	return &stats, nil
}
