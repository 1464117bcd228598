package models

import "github.com/shopspring/decimal"

// PriceLevel is one resting level of the order book.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookSnapshot is an immutable copy of both book sides taken at one point in
// time: bids best-first (descending), asks best-first (ascending). The two
// slices always come from the same update cycle.
type BookSnapshot struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid, or false when the side is empty.
func (s *BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (s *BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Bar is one finalized or in-progress OHLCV bar.
type Bar struct {
	Start    int64           `json:"start"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	Turnover decimal.Decimal `json:"turnover"`
}

// Bar converts the wire entry into the typed bar record.
func (k *KlineEntry) Bar() Bar {
	return Bar{
		Start:    k.Start,
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
		Turnover: k.Turnover,
	}
}

// OrderUpdate is the payload of every order event: the open set after this
// frame and the orders that reached a terminal state within it.
type OrderUpdate struct {
	Open   []Order `json:"open"`
	Closed []Order `json:"close"`
}
