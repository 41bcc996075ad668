// Package book implements the in-memory limit order book for R.index.
//
// Each side is a btree of price levels; a level holds its resting orders in
// a FIFO list so time priority inside a level is free. All mutating and
// reading methods are unsynchronized; the matching engine serializes access.
package book

import (
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/pkg/types"
)

const btreeDegree = 32

// orderNode is one resting order inside a price level's FIFO list.
type orderNode struct {
	order *types.Order
	level *priceLevel
	prev  *orderNode
	next  *orderNode
}

// priceLevel aggregates all resting orders at one price. head is the oldest
// order and is always filled first.
type priceLevel struct {
	price     decimal.Decimal
	head      *orderNode
	tail      *orderNode
	count     int
	totalSize decimal.Decimal
}

func (l *priceLevel) push(o *types.Order) *orderNode {
	n := &orderNode{order: o, level: l}
	if l.tail == nil {
		l.head = n
		l.tail = n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.count++
	l.totalSize = l.totalSize.Add(o.RemainingSize())
	return n
}

func (l *priceLevel) unlink(n *orderNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.count--
	l.totalSize = l.totalSize.Sub(n.order.RemainingSize())
}

// levelItem orders price levels inside a side's btree. Bids sort descending
// so that Ascend on either tree walks from best price to worst.
type levelItem struct {
	level      *priceLevel
	descending bool
}

func (a levelItem) Less(b levelItem) bool {
	if a.descending {
		return a.level.price.GreaterThan(b.level.price)
	}
	return a.level.price.LessThan(b.level.price)
}

// Book is the two-sided limit order book.
type Book struct {
	instrument string
	bids       *btree.BTreeG[levelItem]
	asks       *btree.BTreeG[levelItem]
	orders     map[uuid.UUID]*orderNode
}

// New returns an empty book for one instrument.
func New(instrument string) *Book {
	less := func(a, b levelItem) bool { return a.Less(b) }
	return &Book{
		instrument: instrument,
		bids:       btree.NewG[levelItem](btreeDegree, less),
		asks:       btree.NewG[levelItem](btreeDegree, less),
		orders:     map[uuid.UUID]*orderNode{},
	}
}

func (b *Book) side(s types.Side) *btree.BTreeG[levelItem] {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) probe(s types.Side, price decimal.Decimal) levelItem {
	return levelItem{
		level:      &priceLevel{price: price},
		descending: s == types.SideBuy,
	}
}

// Add rests a limit order at its price level, creating the level if needed.
// The order keeps its arrival position behind earlier orders at the price.
func (b *Book) Add(o *types.Order) {
	tree := b.side(o.Side)
	item, ok := tree.Get(b.probe(o.Side, o.Price))
	if !ok {
		item = b.probe(o.Side, o.Price)
		tree.ReplaceOrInsert(item)
	}
	b.orders[o.ID] = item.level.push(o)
}

// Remove takes an order out of the book, dropping its level when it empties.
// Returns the order, or nil when the id is not resting.
func (b *Book) Remove(id uuid.UUID) *types.Order {
	n, ok := b.orders[id]
	if !ok {
		return nil
	}
	delete(b.orders, id)
	n.level.unlink(n)
	if n.level.count == 0 {
		b.side(n.order.Side).Delete(b.probe(n.order.Side, n.level.price))
	}
	return n.order
}

// Get returns the resting order with the given id, or nil.
func (b *Book) Get(id uuid.UUID) *types.Order {
	if n, ok := b.orders[id]; ok {
		return n.order
	}
	return nil
}

// Reduce records a fill of `filled` against a resting order, adjusting the
// order's FilledSize and the level's aggregate size together.
func (b *Book) Reduce(id uuid.UUID, filled decimal.Decimal) {
	n, ok := b.orders[id]
	if !ok {
		return
	}
	n.order.FilledSize = n.order.FilledSize.Add(filled)
	n.level.totalSize = n.level.totalSize.Sub(filled)
}

// BestBid returns the highest bid level, or nil when the side is empty.
func (b *Book) BestBid() *types.BookLevel {
	return bestOf(b.bids)
}

// BestAsk returns the lowest ask level, or nil when the side is empty.
func (b *Book) BestAsk() *types.BookLevel {
	return bestOf(b.asks)
}

func bestOf(tree *btree.BTreeG[levelItem]) *types.BookLevel {
	var out *types.BookLevel
	tree.Ascend(func(item levelItem) bool {
		out = &types.BookLevel{
			Price:      item.level.price,
			Size:       item.level.totalSize,
			OrderCount: item.level.count,
		}
		return false
	})
	return out
}

// FirstMatchable returns the oldest order at the best opposing price that an
// incoming order on the given side can trade against, or nil when nothing
// crosses. limit is ignored when market is true. Orders owned by exclude are
// skipped, walking deeper into the book past them; pass uuid.Nil to match
// anything.
func (b *Book) FirstMatchable(side types.Side, limit decimal.Decimal, market bool, exclude uuid.UUID) *types.Order {
	var out *types.Order
	b.side(side.Opposite()).Ascend(func(item levelItem) bool {
		if !market && !crosses(side, limit, item.level.price) {
			return false
		}
		for n := item.level.head; n != nil; n = n.next {
			if exclude != uuid.Nil && n.order.TraderID == exclude {
				continue
			}
			out = n.order
			return false
		}
		return true
	})
	return out
}

func crosses(side types.Side, limit, levelPrice decimal.Decimal) bool {
	if side == types.SideBuy {
		return levelPrice.LessThanOrEqual(limit)
	}
	return levelPrice.GreaterThanOrEqual(limit)
}

// OrdersAtPrice returns copies of the resting orders at one price on one
// side, oldest first.
func (b *Book) OrdersAtPrice(side types.Side, price decimal.Decimal) []types.Order {
	item, ok := b.side(side).Get(b.probe(side, price))
	if !ok {
		return nil
	}
	out := make([]types.Order, 0, item.level.count)
	for n := item.level.head; n != nil; n = n.next {
		out = append(out, *n.order)
	}
	return out
}

// Snapshot returns up to depth aggregated levels per side. Bids come back
// high to low, asks low to high. depth <= 0 means the full book.
func (b *Book) Snapshot(depth int) *types.BookSnapshot {
	snap := &types.BookSnapshot{
		Instrument: b.instrument,
		Bids:       collect(b.bids, depth),
		Asks:       collect(b.asks, depth),
		Timestamp:  time.Now().UTC(),
	}
	return snap
}

func collect(tree *btree.BTreeG[levelItem], depth int) []types.BookLevel {
	out := []types.BookLevel{}
	tree.Ascend(func(item levelItem) bool {
		out = append(out, types.BookLevel{
			Price:      item.level.price,
			Size:       item.level.totalSize,
			OrderCount: item.level.count,
		})
		return depth <= 0 || len(out) < depth
	})
	return out
}

// Len returns the number of resting orders across both sides.
func (b *Book) Len() int {
	return len(b.orders)
}
