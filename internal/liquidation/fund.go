package liquidation

import (
	"sync"

	"github.com/shopspring/decimal"

	"rindex-exchange/pkg/types"
)

// InsuranceFund absorbs liquidation shortfalls and collects surpluses.
// It has its own mutex so stats reads never touch the engine lock.
// TotalIn and TotalOut only ever grow; the balance never goes negative.
type InsuranceFund struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	totalIn  decimal.Decimal
	totalOut decimal.Decimal
}

// NewInsuranceFund seeds the fund with its initial balance.
func NewInsuranceFund(initial decimal.Decimal) *InsuranceFund {
	return &InsuranceFund{balance: initial}
}

// Credit pays a liquidation surplus into the fund.
func (f *InsuranceFund) Credit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = f.balance.Add(amount)
	f.totalIn = f.totalIn.Add(amount)
}

// Debit covers a shortfall, clamped at the available balance. It returns
// the amount actually paid out and whether the fund was depleted short of
// the request.
func (f *InsuranceFund) Debit(amount decimal.Decimal) (paid decimal.Decimal, depleted bool) {
	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	paid = decimal.Min(amount, f.balance)
	f.balance = f.balance.Sub(paid)
	f.totalOut = f.totalOut.Add(paid)
	return paid, paid.LessThan(amount)
}

// Balance returns the current fund balance.
func (f *InsuranceFund) Balance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}

// State returns a snapshot of the fund.
func (f *InsuranceFund) State() types.InsuranceFund {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.InsuranceFund{
		Balance:  f.balance,
		TotalIn:  f.totalIn,
		TotalOut: f.totalOut,
	}
}
