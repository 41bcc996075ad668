package position

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/internal/config"
	"rindex-exchange/pkg/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var now = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestApplyOpenFromFlat(t *testing.T) {
	t.Parallel()

	res := Apply(nil, dec("2"), dec("1000"), 10, now)
	if res.Effect != types.EffectOpen {
		t.Errorf("effect = %s, want open", res.Effect)
	}
	p := res.Position
	if !p.Size.Equal(dec("2")) || !p.EntryPrice.Equal(dec("1000")) || p.Leverage != 10 {
		t.Errorf("position = %s @ %s %dx", p.Size, p.EntryPrice, p.Leverage)
	}
	if !p.Margin.Equal(dec("200")) {
		t.Errorf("margin = %s, want 200", p.Margin)
	}
	if !res.RealizedPnL.IsZero() {
		t.Errorf("realized = %s, want 0", res.RealizedPnL)
	}
}

func TestApplyAddAveragesEntry(t *testing.T) {
	t.Parallel()

	res := Apply(nil, dec("1"), dec("1000"), 10, now)
	res = Apply(res.Position, dec("1"), dec("1100"), 20, now)
	p := res.Position
	if !p.Size.Equal(dec("2")) {
		t.Errorf("size = %s, want 2", p.Size)
	}
	if !p.EntryPrice.Equal(dec("1050")) {
		t.Errorf("entry = %s, want 1050", p.EntryPrice)
	}
	if p.Leverage != 10 {
		t.Errorf("leverage = %d, adds must keep the existing leverage", p.Leverage)
	}
	if res.Effect != types.EffectOpen {
		t.Errorf("effect = %s, want open", res.Effect)
	}
}

func TestApplyReduceRealizesPnL(t *testing.T) {
	t.Parallel()

	long := Apply(nil, dec("3"), dec("1000"), 10, now).Position
	res := Apply(long, dec("-1"), dec("1050"), 10, now)
	if res.Effect != types.EffectClose {
		t.Errorf("effect = %s, want close", res.Effect)
	}
	if !res.RealizedPnL.Equal(dec("50")) {
		t.Errorf("realized = %s, want 50", res.RealizedPnL)
	}
	p := res.Position
	if !p.Size.Equal(dec("2")) || !p.EntryPrice.Equal(dec("1000")) {
		t.Errorf("position = %s @ %s, reduce must keep the entry", p.Size, p.EntryPrice)
	}

	short := Apply(nil, dec("-2"), dec("1000"), 10, now).Position
	res = Apply(short, dec("1"), dec("950"), 10, now)
	if !res.RealizedPnL.Equal(dec("50")) {
		t.Errorf("short realized = %s, want 50", res.RealizedPnL)
	}
}

func TestApplyFullCloseGoesFlat(t *testing.T) {
	t.Parallel()

	long := Apply(nil, dec("2"), dec("1000"), 10, now).Position
	res := Apply(long, dec("-2"), dec("990"), 10, now)
	if res.Position != nil {
		t.Error("full close must return a nil position")
	}
	if !res.RealizedPnL.Equal(dec("-20")) {
		t.Errorf("realized = %s, want -20", res.RealizedPnL)
	}
}

func TestApplyFlip(t *testing.T) {
	t.Parallel()

	long := Apply(nil, dec("1"), dec("1000"), 10, now).Position
	long.TraderID = uuid.New()
	res := Apply(long, dec("-3"), dec("1100"), 25, now)
	if res.Effect != types.EffectClose {
		t.Errorf("effect = %s, want close", res.Effect)
	}
	if !res.RealizedPnL.Equal(dec("100")) {
		t.Errorf("realized = %s, want 100 on the closed long", res.RealizedPnL)
	}
	p := res.Position
	if !p.Size.Equal(dec("-2")) {
		t.Errorf("size = %s, want -2", p.Size)
	}
	if !p.EntryPrice.Equal(dec("1100")) {
		t.Errorf("entry = %s, flips must reset entry to the fill price", p.EntryPrice)
	}
	if p.Leverage != 25 {
		t.Errorf("leverage = %d, flips must adopt the order's leverage", p.Leverage)
	}
	if p.TraderID != long.TraderID {
		t.Error("flip must keep the trader id")
	}
}

func TestEffectClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		old, delta string
		want       types.PositionEffect
	}{
		{"0", "1", types.EffectOpen},
		{"2", "1", types.EffectOpen},
		{"-2", "-1", types.EffectOpen},
		{"2", "-1", types.EffectClose},
		{"2", "-2", types.EffectClose},
		{"1", "-3", types.EffectClose},
		{"-1", "2", types.EffectClose},
	}
	for _, tt := range tests {
		if got := Effect(dec(tt.old), dec(tt.delta)); got != tt.want {
			t.Errorf("Effect(%s, %s) = %s, want %s", tt.old, tt.delta, got, tt.want)
		}
	}
}

func TestLiquidationPrice(t *testing.T) {
	t.Parallel()

	margins := config.Default().Liquidation.MaintenanceMargins

	// 10x long at 1000, conservative tier: distance = 100 * 0.995 = 99.5
	got := LiquidationPrice(dec("1000"), 10, true, margins)
	if !got.Equal(dec("900.5")) {
		t.Errorf("10x long liq = %s, want 900.5", got)
	}
	// same short: 1000 + 99.5
	got = LiquidationPrice(dec("1000"), 10, false, margins)
	if !got.Equal(dec("1099.5")) {
		t.Errorf("10x short liq = %s, want 1099.5", got)
	}
	// 100x long, aggressive tier: distance = 10 * 0.98 = 9.8
	got = LiquidationPrice(dec("1000"), 100, true, margins)
	if !got.Equal(dec("990.2")) {
		t.Errorf("100x long liq = %s, want 990.2", got)
	}
	// 150x short, degen tier: distance = 1000/150 * 0.95
	got = LiquidationPrice(dec("1500"), 150, false, margins)
	want := dec("1500").Add(dec("1500").Div(dec("150")).Mul(dec("0.95")))
	if !got.Equal(want) {
		t.Errorf("150x short liq = %s, want %s", got, want)
	}
}

func TestShouldLiquidate(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(config.Default().Liquidation.MaintenanceMargins)
	long := &types.Position{Size: dec("1"), EntryPrice: dec("1000"), Leverage: 10}
	if calc.ShouldLiquidate(long, dec("901")) {
		t.Error("long above liq price must not trigger")
	}
	if !calc.ShouldLiquidate(long, dec("900.5")) {
		t.Error("long at liq price must trigger")
	}
	if !calc.ShouldLiquidate(long, dec("850")) {
		t.Error("long below liq price must trigger")
	}
	if calc.ShouldLiquidate(long, decimal.Zero) {
		t.Error("zero mark must never trigger")
	}

	short := &types.Position{Size: dec("-1"), EntryPrice: dec("1000"), Leverage: 10}
	if calc.ShouldLiquidate(short, dec("1099")) {
		t.Error("short below liq price must not trigger")
	}
	if !calc.ShouldLiquidate(short, dec("1099.5")) {
		t.Error("short at liq price must trigger")
	}
}

func TestUnrealizedPnL(t *testing.T) {
	t.Parallel()

	long := &types.Position{Size: dec("2"), EntryPrice: dec("1000")}
	if got := UnrealizedPnL(long, dec("1010")); !got.Equal(dec("20")) {
		t.Errorf("long upnl = %s, want 20", got)
	}
	short := &types.Position{Size: dec("-2"), EntryPrice: dec("1000")}
	if got := UnrealizedPnL(short, dec("1010")); !got.Equal(dec("-20")) {
		t.Errorf("short upnl = %s, want -20", got)
	}
	if got := UnrealizedPnL(nil, dec("1010")); !got.IsZero() {
		t.Errorf("nil upnl = %s, want 0", got)
	}
}

func TestRequiredMargin(t *testing.T) {
	t.Parallel()

	if got := RequiredMargin(dec("-2"), dec("1000"), 20); !got.Equal(dec("100")) {
		t.Errorf("margin = %s, want 100", got)
	}
	if got := RequiredMargin(dec("1"), dec("1000"), 0); !got.IsZero() {
		t.Errorf("margin with zero leverage = %s, want 0", got)
	}
}
