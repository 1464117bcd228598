package bybit

import (
	"time"

	"github.com/shopspring/decimal"

	"bybitflow/models"
)

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the subscription is acknowledged and every public
// channel has delivered data on the current connection.
func (s *Session) Ready() bool {
	return s.State() == Ready
}

// Channels returns a copy of the subscribed channel list.
func (s *Session) Channels() []string {
	out := make([]string, len(s.channels))
	copy(out, s.channels)
	return out
}

// LastUpdate returns when the channel last delivered data on the current
// connection, false if it has not yet.
func (s *Session) LastUpdate(channel string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastUpdate[channel]
	return ts, ok
}

// Staleness returns the time since any public channel last delivered data.
// False while no data has arrived on the current connection. External
// watchdogs combine this with Reconnect.
func (s *Session) Staleness() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	for ch, ts := range s.lastUpdate {
		if models.IsPrivateChannel(ch) {
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	if latest.IsZero() {
		return 0, false
	}
	return s.now().Sub(latest), true
}

// The remaining accessors expose the reconciler's derived state so consumer
// callbacks can read everything through the session handle they receive.

func (s *Session) Orderbook() models.BookSnapshot {
	return s.rec.Orderbook()
}

func (s *Session) LastPrice() decimal.Decimal {
	return s.rec.LastPrice()
}

func (s *Session) Instrument() (models.InstrumentInfo, bool) {
	return s.rec.Instrument()
}

func (s *Session) Position() (models.Position, bool) {
	return s.rec.Position()
}

func (s *Session) OpenOrders() []models.Order {
	return s.rec.OpenOrders()
}

func (s *Session) RecentTrades() []models.TradeEntry {
	return s.rec.RecentTrades()
}

func (s *Session) MyExecutions() []models.Execution {
	return s.rec.MyExecutions()
}

func (s *Session) OrderHistory() []models.Order {
	return s.rec.OrderHistory()
}

func (s *Session) Bars() []models.Bar {
	return s.rec.Bars()
}

func (s *Session) CurrentBar() (models.Bar, bool) {
	return s.rec.CurrentBar()
}
