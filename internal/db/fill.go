package db

import (
	"fmt"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

// FillRecord gathers every row touched by one fill so the whole thing lands
// in a single transaction: the trade itself, both order states, both
// traders, the surviving positions, and deletes for positions the fill
// closed out.
type FillRecord struct {
	Trade           *types.Trade
	Orders          []*types.Order
	DeletedOrders   []uuid.UUID // resting orders the fill completed
	Traders         []*types.Trader
	Positions       []*types.Position
	ClosedPositions []uuid.UUID // trader ids whose position went flat
	Stats           *types.MarketStats
}

// ApplyFill persists a FillRecord atomically. Either every row lands or
// none do, so a crash mid-fill can never leave a trade without its order
// and position updates.
func (s *Store) ApplyFill(rec *FillRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin fill tx: %w", err)
	}
	defer tx.Rollback()

	if rec.Trade != nil {
		if err := saveTrade(tx, rec.Trade); err != nil {
			return err
		}
	}
	for _, o := range rec.Orders {
		if err := saveOrder(tx, o); err != nil {
			return err
		}
	}
	for _, id := range rec.DeletedOrders {
		if err := deleteOrder(tx, id); err != nil {
			return err
		}
	}
	for _, t := range rec.Traders {
		if err := saveTrader(tx, t); err != nil {
			return err
		}
	}
	for _, p := range rec.Positions {
		if err := savePosition(tx, p); err != nil {
			return err
		}
	}
	for _, traderID := range rec.ClosedPositions {
		if err := deletePosition(tx, traderID, types.RIndexSymbol); err != nil {
			return err
		}
	}
	if rec.Stats != nil {
		if err := saveMarketStats(tx, rec.Stats); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fill tx: %w", err)
	}
	return nil
}
