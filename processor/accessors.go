package processor

import (
	"github.com/shopspring/decimal"

	"bybitflow/models"
)

// Orderbook returns a copy of the last published book snapshot. Bids are
// best-first descending, asks best-first ascending, always from the same
// update cycle.
func (r *Reconciler) Orderbook() models.BookSnapshot {
	return r.book.Read()
}

// LastPrice returns the price of the most recent public trade. Zero until
// the first trade arrives.
func (r *Reconciler) LastPrice() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastPrice
}

// Instrument returns the merged instrument record, false before the first
// snapshot.
func (r *Reconciler) Instrument() (models.InstrumentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.instrument == nil {
		return models.InstrumentInfo{}, false
	}
	return *r.instrument, true
}

// Position returns the current position, false before the first position
// message for the configured symbol.
func (r *Reconciler) Position() (models.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.position == nil {
		return models.Position{}, false
	}
	return *r.position, true
}

// OpenOrders returns the open order set sorted by identifier.
func (r *Reconciler) OpenOrders() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Order, 0, len(r.openOrders))
	for _, order := range r.openOrders {
		out = append(out, order)
	}
	sortOrders(out)
	return out
}

// RecentTrades returns the public trade history, oldest first.
func (r *Reconciler) RecentTrades() []models.TradeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trades.Items()
}

// MyExecutions returns the own-fill history, oldest first.
func (r *Reconciler) MyExecutions() []models.Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fills.Items()
}

// OrderHistory returns the raw order event history, oldest first.
func (r *Reconciler) OrderHistory() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderHist.Items()
}

// Bars returns the finalized bar history, oldest first.
func (r *Reconciler) Bars() []models.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bars.Items()
}

// CurrentBar returns the in-progress bar, false before the first kline
// message.
func (r *Reconciler) CurrentBar() (models.Bar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentBar == nil {
		return models.Bar{}, false
	}
	return *r.currentBar, true
}
