package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/pkg/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTrader(username string) *types.Trader {
	return &types.Trader{
		ID:        uuid.New(),
		Username:  username,
		Type:      types.TraderTypeBot,
		Balance:   dec("10000"),
		TotalPnL:  decimal.Zero,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestTraderRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("alice")
	tr.TotalPnL = dec("-12.5")
	tr.TradeCount = 7
	tr.MaxLeverageUsed = 50
	if err := s.SaveTrader(tr); err != nil {
		t.Fatalf("SaveTrader: %v", err)
	}

	got, err := s.GetTrader(tr.ID)
	if err != nil {
		t.Fatalf("GetTrader: %v", err)
	}
	if got == nil {
		t.Fatal("trader not found")
	}
	if got.Username != "alice" || !got.TotalPnL.Equal(dec("-12.5")) || got.TradeCount != 7 || got.MaxLeverageUsed != 50 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	byName, err := s.GetTraderByUsername("alice")
	if err != nil || byName == nil || byName.ID != tr.ID {
		t.Fatalf("GetTraderByUsername: %v %v", byName, err)
	}

	missing, err := s.GetTrader(uuid.New())
	if err != nil || missing != nil {
		t.Errorf("missing trader should be (nil, nil), got %v %v", missing, err)
	}
}

func TestPositionRoundTripAndDelete(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("bob")
	if err := s.SaveTrader(tr); err != nil {
		t.Fatal(err)
	}

	pos := &types.Position{
		TraderID:         tr.ID,
		Instrument:       types.RIndexSymbol,
		Size:             dec("-1.5"),
		EntryPrice:       dec("1000.25"),
		Leverage:         25,
		Margin:           dec("60.015"),
		RealizedPnL:      dec("3"),
		LiquidationPrice: dec("1039.8"),
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SavePosition(pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	all, err := s.GetAllPositions(types.RIndexSymbol)
	if err != nil {
		t.Fatalf("GetAllPositions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d positions, want 1", len(all))
	}
	got := all[0]
	if !got.Size.Equal(dec("-1.5")) || !got.EntryPrice.Equal(dec("1000.25")) || got.Leverage != 25 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// upsert keeps one row per (trader, instrument)
	pos.Size = dec("-2")
	if err := s.SavePosition(pos); err != nil {
		t.Fatal(err)
	}
	all, _ = s.GetAllPositions(types.RIndexSymbol)
	if len(all) != 1 || !all[0].Size.Equal(dec("-2")) {
		t.Errorf("upsert failed: %+v", all)
	}

	if err := s.DeletePosition(tr.ID, types.RIndexSymbol); err != nil {
		t.Fatal(err)
	}
	all, _ = s.GetAllPositions(types.RIndexSymbol)
	if len(all) != 0 {
		t.Errorf("position not deleted")
	}
}

func TestOpenOrdersRecoveryOrder(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("carol")
	if err := s.SaveTrader(tr); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	mkOrder := func(createdAt time.Time, status types.OrderStatus) *types.Order {
		return &types.Order{
			ID:         uuid.New(),
			TraderID:   tr.ID,
			Instrument: types.RIndexSymbol,
			Side:       types.SideBuy,
			Type:       types.OrderTypeLimit,
			Price:      dec("999"),
			Size:       dec("1"),
			FilledSize: decimal.Zero,
			Leverage:   10,
			Status:     status,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		}
	}

	second := mkOrder(base.Add(time.Second), types.OrderStatusPartial)
	first := mkOrder(base, types.OrderStatusPending)
	done := mkOrder(base.Add(2*time.Second), types.OrderStatusFilled)
	gone := mkOrder(base.Add(3*time.Second), types.OrderStatusCancelled)
	for _, o := range []*types.Order{second, first, done, gone} {
		if err := s.SaveOrder(o); err != nil {
			t.Fatal(err)
		}
	}

	open, err := s.GetOpenOrders(types.RIndexSymbol)
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("got %d open orders, want 2", len(open))
	}
	if open[0].ID != first.ID || open[1].ID != second.ID {
		t.Error("open orders not in created_at order")
	}
}

func TestApplyFillAtomic(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	buyer := newTrader("buyer")
	seller := newTrader("seller")
	if err := s.SaveTrader(buyer); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTrader(seller); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	trade := &types.Trade{
		ID:                uuid.New(),
		Instrument:        types.RIndexSymbol,
		Price:             dec("1001"),
		Size:              dec("0.5"),
		Timestamp:         now,
		BuyerID:           buyer.ID,
		SellerID:          seller.ID,
		BuyerOrderID:      uuid.New(),
		SellerOrderID:     uuid.New(),
		BuyerLeverage:     10,
		SellerLeverage:    20,
		BuyerEffect:       types.EffectOpen,
		SellerEffect:      types.EffectOpen,
		BuyerNewPosition:  dec("0.5"),
		SellerNewPosition: dec("-0.5"),
		AggressorSide:     types.SideBuy,
	}
	rec := &FillRecord{
		Trade: trade,
		Traders: []*types.Trader{buyer, seller},
		Positions: []*types.Position{
			{TraderID: buyer.ID, Instrument: types.RIndexSymbol, Size: dec("0.5"), EntryPrice: dec("1001"), Leverage: 10, UpdatedAt: now},
		},
		ClosedPositions: []uuid.UUID{seller.ID},
		Stats: &types.MarketStats{
			Instrument: types.RIndexSymbol,
			LastPrice:  dec("1001"),
			MarkPrice:  dec("1001"),
		},
	}
	if err := s.ApplyFill(rec); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	trades, err := s.GetRecentTrades(types.RIndexSymbol, 10)
	if err != nil || len(trades) != 1 {
		t.Fatalf("GetRecentTrades: %v %d", err, len(trades))
	}
	got := trades[0]
	if got.ID != trade.ID || !got.Price.Equal(dec("1001")) || got.BuyerOrderID != trade.BuyerOrderID {
		t.Errorf("trade round trip mismatch: %+v", got)
	}
	if got.BuyerEffect != types.EffectOpen || !got.SellerNewPosition.Equal(dec("-0.5")) {
		t.Errorf("trade transparency fields lost: %+v", got)
	}

	stats, err := s.GetMarketStats(types.RIndexSymbol)
	if err != nil || stats == nil {
		t.Fatalf("GetMarketStats: %v", err)
	}
	if !stats.LastPrice.Equal(dec("1001")) {
		t.Errorf("stats last price = %s", stats.LastPrice)
	}

	byTrader, err := s.GetTraderTrades(seller.ID, types.RIndexSymbol, 10)
	if err != nil || len(byTrader) != 1 {
		t.Fatalf("GetTraderTrades: %v %d", err, len(byTrader))
	}
}

func TestLiquidationRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("degen")
	if err := s.SaveTrader(tr); err != nil {
		t.Fatal(err)
	}

	liq := &types.Liquidation{
		ID:               uuid.New(),
		TraderID:         tr.ID,
		Instrument:       types.RIndexSymbol,
		Side:             types.SideBuy,
		Size:             dec("2"),
		EntryPrice:       dec("1000"),
		LiquidationPrice: dec("900.5"),
		MarkPrice:        dec("899"),
		Leverage:         10,
		Loss:             dec("202"),
		InsuranceFundHit: true,
		Timestamp:        time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveLiquidation(liq); err != nil {
		t.Fatalf("SaveLiquidation: %v", err)
	}

	got, err := s.GetRecentLiquidations(types.RIndexSymbol, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("GetRecentLiquidations: %v %d", err, len(got))
	}
	if got[0].ID != liq.ID || !got[0].InsuranceFundHit || !got[0].Loss.Equal(dec("202")) {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
}

func TestDeleteOrder(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("dave")
	if err := s.SaveTrader(tr); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	order := &types.Order{
		ID:         uuid.New(),
		TraderID:   tr.ID,
		Instrument: types.RIndexSymbol,
		Side:       types.SideSell,
		Type:       types.OrderTypeLimit,
		Price:      dec("1010"),
		Size:       dec("1"),
		FilledSize: decimal.Zero,
		Leverage:   10,
		Status:     types.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatal(err)
	}
	if got, err := s.GetOrder(order.ID); err != nil || got == nil {
		t.Fatalf("GetOrder before delete: %v %v", got, err)
	}

	if err := s.DeleteOrder(order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if got, err := s.GetOrder(order.ID); err != nil || got != nil {
		t.Errorf("deleted order should be (nil, nil), got %v %v", got, err)
	}
	open, err := s.GetOpenOrders(types.RIndexSymbol)
	if err != nil || len(open) != 0 {
		t.Errorf("open orders after delete: %v %d", err, len(open))
	}

	// deleting an absent order is a no-op
	if err := s.DeleteOrder(order.ID); err != nil {
		t.Errorf("second DeleteOrder: %v", err)
	}
}

func TestApplyFillDeletesCompletedOrders(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	buyer := newTrader("fbuyer")
	seller := newTrader("fseller")
	for _, tr := range []*types.Trader{buyer, seller} {
		if err := s.SaveTrader(tr); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	mkOrder := func(trader uuid.UUID, side types.Side, status types.OrderStatus, filled string) *types.Order {
		return &types.Order{
			ID:         uuid.New(),
			TraderID:   trader,
			Instrument: types.RIndexSymbol,
			Side:       side,
			Type:       types.OrderTypeLimit,
			Price:      dec("1000"),
			Size:       dec("2"),
			FilledSize: dec(filled),
			Leverage:   10,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	// rested partially filled before this fill completes it
	completed := mkOrder(seller.ID, types.SideSell, types.OrderStatusPartial, "1")
	if err := s.SaveOrder(completed); err != nil {
		t.Fatal(err)
	}
	partial := mkOrder(buyer.ID, types.SideBuy, types.OrderStatusPartial, "1")

	rec := &FillRecord{
		Trade: &types.Trade{
			ID:            uuid.New(),
			Instrument:    types.RIndexSymbol,
			Price:         dec("1000"),
			Size:          dec("1"),
			Timestamp:     now,
			BuyerID:       buyer.ID,
			SellerID:      seller.ID,
			BuyerOrderID:  partial.ID,
			SellerOrderID: completed.ID,
			AggressorSide: types.SideBuy,
		},
		Orders:        []*types.Order{partial},
		DeletedOrders: []uuid.UUID{completed.ID},
		Traders:       []*types.Trader{buyer, seller},
	}
	if err := s.ApplyFill(rec); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	if got, err := s.GetOrder(completed.ID); err != nil || got != nil {
		t.Errorf("completed order should be gone, got %v %v", got, err)
	}
	got, err := s.GetOrder(partial.ID)
	if err != nil || got == nil {
		t.Fatalf("partially filled order lost: %v %v", got, err)
	}
	if !got.FilledSize.Equal(dec("1")) || got.Status != types.OrderStatusPartial {
		t.Errorf("partial state = %s filled %s", got.Status, got.FilledSize)
	}
}

func TestCorruptRowSurfacesError(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	tr := newTrader("eve")
	if err := s.SaveTrader(tr); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	order := &types.Order{
		ID:         uuid.New(),
		TraderID:   tr.ID,
		Instrument: types.RIndexSymbol,
		Side:       types.SideBuy,
		Type:       types.OrderTypeLimit,
		Price:      dec("999"),
		Size:       dec("1"),
		FilledSize: decimal.Zero,
		Leverage:   10,
		Status:     types.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatal(err)
	}

	if _, err := s.db.Exec(`UPDATE orders SET price = 'garbage' WHERE id = ?`, order.ID.String()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOpenOrders(types.RIndexSymbol); err == nil {
		t.Error("corrupt price must surface as an error, not a zero value")
	}
	if _, err := s.GetOrder(order.ID); err == nil {
		t.Error("corrupt price must fail point lookups too")
	}

	// a trader row with a mangled id (no referencing rows, so the update passes FK checks)
	lone := newTrader("lone")
	if err := s.SaveTrader(lone); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE traders SET id = 'not-a-uuid' WHERE username = 'lone'`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAllTraders(); err == nil {
		t.Error("corrupt trader id must surface as an error")
	}
}
