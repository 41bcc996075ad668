package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"rindex-exchange/pkg/types"
)

// seedTrade plants a trade directly in the history so candle tests control
// timestamps exactly. History is newest first.
func seedTrade(e *Engine, price, size string, ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushTrade(&types.Trade{
		ID:         uuid.New(),
		Instrument: types.RIndexSymbol,
		Price:      dec(price),
		Size:       dec(size),
		Timestamp:  ts,
	})
	e.lastPrice = dec(price)
}

func TestCandleBucketsAlignToUTC(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	// trades land oldest first so the newest-first history is consistent
	seedTrade(e, "1000", "1", base.Add(10*time.Second))
	seedTrade(e, "1010", "2", base.Add(30*time.Second))
	seedTrade(e, "995", "1", base.Add(50*time.Second))
	seedTrade(e, "1005", "1", base.Add(70*time.Second)) // next 1m bucket

	candles, err := e.GetCandles(types.Interval1m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}

	c := candles[0]
	if !c.OpenTime.Equal(base) {
		t.Errorf("open time = %s, want %s", c.OpenTime, base)
	}
	if !c.Open.Equal(dec("1000")) {
		t.Errorf("open = %s, the earliest trade in the bucket sets it", c.Open)
	}
	if !c.Close.Equal(dec("995")) {
		t.Errorf("close = %s, the latest trade in the bucket sets it", c.Close)
	}
	if !c.High.Equal(dec("1010")) || !c.Low.Equal(dec("995")) {
		t.Errorf("high/low = %s/%s", c.High, c.Low)
	}
	if !c.Volume.Equal(dec("4")) || c.TradeCount != 3 {
		t.Errorf("volume = %s count = %d, want 4/3", c.Volume, c.TradeCount)
	}

	if !candles[1].OpenTime.Equal(base.Add(time.Minute)) {
		t.Errorf("second bucket opens at %s", candles[1].OpenTime)
	}
}

func TestCandleIntervalsAndRange(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	seedTrade(e, "1000", "1", day.Add(3*time.Hour))
	seedTrade(e, "1100", "1", day.Add(15*time.Hour))
	seedTrade(e, "1050", "1", day.Add(27*time.Hour)) // next day

	daily, err := e.GetCandles(types.Interval1d, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 2 {
		t.Fatalf("got %d daily candles, want 2", len(daily))
	}
	if !daily[0].OpenTime.Equal(day) {
		t.Errorf("daily candle opens at %s, want midnight UTC", daily[0].OpenTime)
	}
	if !daily[0].Open.Equal(dec("1000")) || !daily[0].Close.Equal(dec("1100")) {
		t.Errorf("daily OHLC = %s/%s", daily[0].Open, daily[0].Close)
	}

	ranged, err := e.GetCandlesRange(types.Interval1h, day.Add(12*time.Hour), day.Add(20*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 || !ranged[0].Open.Equal(dec("1100")) {
		t.Errorf("ranged candles = %d", len(ranged))
	}

	if _, err := e.GetCandles(types.CandleInterval("7m"), 0); err == nil {
		t.Error("unknown interval must error")
	}
}

func TestCandleLimitKeepsNewest(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedTrade(e, "1000", "1", base.Add(time.Duration(i)*time.Minute))
	}

	candles, err := e.GetCandles(types.Interval1m, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if !candles[1].OpenTime.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("limit must keep the newest buckets, last opens %s", candles[1].OpenTime)
	}
}

func TestStats24hWindowExcludesOldTrades(t *testing.T) {
	t.Parallel()

	e := testEngine(t)
	now := time.Now().UTC()
	seedTrade(e, "2000", "1", now.Add(-25*time.Hour)) // outside the window
	seedTrade(e, "1000", "1", now.Add(-time.Hour))

	stats := e.GetMarketStats()
	if !stats.High24h.Equal(dec("1000")) {
		t.Errorf("high = %s, stale trades must not count", stats.High24h)
	}
	if !stats.Volume24h.Equal(dec("1000")) {
		t.Errorf("volume = %s, want 1000", stats.Volume24h)
	}
	if !stats.LastPrice.Equal(dec("1000")) {
		t.Errorf("last = %s", stats.LastPrice)
	}
}
