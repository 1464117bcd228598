// Package book maintains the two sorted sides of a price-level order book
// and publishes consistent point-in-time snapshots for concurrent readers.
package book

import (
	"sync"

	"github.com/tidwall/btree"

	"bybitflow/models"
)

// Side selects one of the two book sides.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Book holds both sides keyed by price. The trees are mutated only from the
// session receive path; the mutex guards the published snapshot pair so a
// reader never observes bids and asks from different update cycles.
type Book struct {
	bids *btree.BTreeG[models.PriceLevel]
	asks *btree.BTreeG[models.PriceLevel]

	mu        sync.Mutex
	published models.BookSnapshot
}

func byPrice(a, b models.PriceLevel) bool {
	return a.Price.LessThan(b.Price)
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids: btree.NewBTreeG[models.PriceLevel](byPrice),
		asks: btree.NewBTreeG[models.PriceLevel](byPrice),
	}
}

func (b *Book) side(s Side) *btree.BTreeG[models.PriceLevel] {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Clear empties both sides. The published snapshot is untouched until the
// next Publish.
func (b *Book) Clear() {
	b.bids.Clear()
	b.asks.Clear()
}

// ReplaceSnapshot drops the side's contents and bulk-loads the given levels.
func (b *Book) ReplaceSnapshot(s Side, levels []models.PriceLevel) {
	t := b.side(s)
	t.Clear()
	for _, lv := range levels {
		t.Set(lv)
	}
}

// Upsert inserts or overwrites the level at the given price.
func (b *Book) Upsert(s Side, level models.PriceLevel) {
	b.side(s).Set(level)
}

// Remove deletes the level at the given price. Deleting an absent price is a
// no-op: the protocol promises deletes target existing keys, but the stream
// cannot be trusted to the point of crashing on it.
func (b *Book) Remove(s Side, level models.PriceLevel) {
	b.side(s).Delete(level)
}

// Depth returns the number of levels currently held on a side.
func (b *Book) Depth(s Side) int {
	return b.side(s).Len()
}

// Publish captures both sides into a fresh immutable snapshot (bids
// descending, asks ascending) and swaps it in under the lock.
func (b *Book) Publish() {
	snap := models.BookSnapshot{
		Bids: make([]models.PriceLevel, 0, b.bids.Len()),
		Asks: make([]models.PriceLevel, 0, b.asks.Len()),
	}
	b.bids.Reverse(func(lv models.PriceLevel) bool {
		snap.Bids = append(snap.Bids, lv)
		return true
	})
	b.asks.Scan(func(lv models.PriceLevel) bool {
		snap.Asks = append(snap.Asks, lv)
		return true
	})

	b.mu.Lock()
	b.published = snap
	b.mu.Unlock()
}

// Read returns a copy of the last published snapshot.
func (b *Book) Read() models.BookSnapshot {
	b.mu.Lock()
	snap := b.published
	b.mu.Unlock()

	out := models.BookSnapshot{
		Bids: make([]models.PriceLevel, len(snap.Bids)),
		Asks: make([]models.PriceLevel, len(snap.Asks)),
	}
	copy(out.Bids, snap.Bids)
	copy(out.Asks, snap.Asks)
	return out
}
