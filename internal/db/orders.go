package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

const orderCols = `id, trader_id, instrument, side, type, price, size, filled_size, status, leverage, created_at, updated_at`

// SaveOrder inserts or updates an order.
func (s *Store) SaveOrder(o *types.Order) error {
	return saveOrder(s.db, o)
}

func saveOrder(e execer, o *types.Order) error {
	query := `
	INSERT INTO orders (` + orderCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		filled_size = excluded.filled_size,
		status = excluded.status,
		updated_at = excluded.updated_at
	`
	_, err := e.Exec(query,
		o.ID.String(),
		o.TraderID.String(),
		o.Instrument,
		string(o.Side),
		string(o.Type),
		o.Price.String(),
		o.Size.String(),
		o.FilledSize.String(),
		string(o.Status),
		o.Leverage,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// DeleteOrder removes an order. Called when a resting order fully fills or
// is cancelled, so the orders table only ever holds open orders.
func (s *Store) DeleteOrder(orderID uuid.UUID) error {
	return deleteOrder(s.db, orderID)
}

func deleteOrder(e execer, orderID uuid.UUID) error {
	if _, err := e.Exec(`DELETE FROM orders WHERE id = ?`, orderID.String()); err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}
	return nil
}

func scanOrder(row interface{ Scan(...any) error }) (*types.Order, error) {
	var o types.Order
	var idStr, traderIDStr, sideStr, typeStr, priceStr, sizeStr, filledStr, statusStr string
	err := row.Scan(&idStr, &traderIDStr, &o.Instrument, &sideStr, &typeStr, &priceStr, &sizeStr, &filledStr, &statusStr, &o.Leverage, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var p rowParser
	o.ID = p.id(idStr)
	o.TraderID = p.id(traderIDStr)
	o.Side = types.Side(sideStr)
	o.Type = types.OrderType(typeStr)
	o.Price = p.dec(priceStr)
	o.Size = p.dec(sizeStr)
	o.FilledSize = p.dec(filledStr)
	o.Status = types.OrderStatus(statusStr)
	if p.err != nil {
		return nil, p.err
	}
	return &o, nil
}

// GetOrder retrieves an order by id. Returns (nil, nil) when absent; since
// terminal orders are deleted, only open orders are ever found.
func (s *Store) GetOrder(id uuid.UUID) (*types.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderCols+` FROM orders WHERE id = ?`, id.String())
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// GetOpenOrders retrieves resting orders (pending or partial) for an
// instrument in arrival order, which is exactly the order the book needs
// them re-inserted in on recovery.
func (s *Store) GetOpenOrders(instrument string) ([]*types.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders
	WHERE instrument = ? AND status IN ('pending', 'partial')
	ORDER BY created_at`
	rows, err := s.db.Query(query, instrument)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()

	var orders []*types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
