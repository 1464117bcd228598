package processor

import (
	"encoding/json"
	"fmt"

	"bybitflow/internal/book"
	"bybitflow/models"
)

// handleTrade records every public trade: last price, trade history, one
// event per entry.
func (r *Reconciler) handleTrade(frame *models.Frame) ([]models.Event, error) {
	var entries []models.TradeEntry
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		return nil, fmt.Errorf("decode trade payload: %w", err)
	}

	events := make([]models.Event, 0, len(entries))
	r.mu.Lock()
	for _, entry := range entries {
		r.lastPrice = entry.Price
		r.trades.Push(entry)
		events = append(events, models.Event{Topic: models.TopicTrade, Payload: entry})
	}
	r.mu.Unlock()
	return events, nil
}

// handleInstrument replaces the instrument record on snapshots and merges
// partial updates on deltas. Only deltas touching the last traded price
// raise an event.
func (r *Reconciler) handleInstrument(frame *models.Frame) ([]models.Event, error) {
	switch frame.Type {
	case models.TypeSnapshot:
		var info models.InstrumentInfo
		if err := json.Unmarshal(frame.Data, &info); err != nil {
			return nil, fmt.Errorf("decode instrument snapshot: %w", err)
		}
		r.mu.Lock()
		r.instrument = &info
		r.mu.Unlock()
		return nil, nil

	case models.TypeDelta:
		var payload models.InstrumentDeltaPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode instrument delta: %w", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		// Deltas arriving before the snapshot have nothing to merge into.
		if r.instrument == nil || len(payload.Update) == 0 {
			return nil, nil
		}
		if payload.Update[0].Apply(r.instrument) {
			merged := *r.instrument
			return []models.Event{{Topic: models.TopicInstrument, Payload: merged}}, nil
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unexpected instrument payload type %q", frame.Type)
}

func bookSide(row *models.BookRow) (book.Side, bool) {
	switch row.Side {
	case models.SideBuy:
		return book.Bid, true
	case models.SideSell:
		return book.Ask, true
	}
	return 0, false
}

// handleOrderBook rebuilds the book from snapshots and applies deltas in
// delete, insert, update order, then publishes a consistent snapshot pair.
func (r *Reconciler) handleOrderBook(frame *models.Frame) ([]models.Event, error) {
	switch frame.Type {
	case models.TypeSnapshot:
		var rows []models.BookRow
		if err := json.Unmarshal(frame.Data, &rows); err != nil {
			return nil, fmt.Errorf("decode book snapshot: %w", err)
		}
		r.book.Clear()
		for i := range rows {
			side, ok := bookSide(&rows[i])
			if !ok {
				continue
			}
			r.book.Upsert(side, models.PriceLevel{Price: rows[i].Price, Size: rows[i].Size})
		}

	case models.TypeDelta:
		var payload models.BookDeltaPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode book delta: %w", err)
		}
		for i := range payload.Delete {
			if side, ok := bookSide(&payload.Delete[i]); ok {
				r.book.Remove(side, models.PriceLevel{Price: payload.Delete[i].Price})
			}
		}
		for i := range payload.Insert {
			if side, ok := bookSide(&payload.Insert[i]); ok {
				r.book.Upsert(side, models.PriceLevel{Price: payload.Insert[i].Price, Size: payload.Insert[i].Size})
			}
		}
		for i := range payload.Update {
			if side, ok := bookSide(&payload.Update[i]); ok {
				r.book.Upsert(side, models.PriceLevel{Price: payload.Update[i].Price, Size: payload.Update[i].Size})
			}
		}

	default:
		return nil, fmt.Errorf("unexpected book payload type %q", frame.Type)
	}

	r.book.Publish()
	return nil, nil
}

// handleKline rolls the in-progress bar over when a strictly newer start
// time arrives; the finalized bar joins the history and is raised as an
// event. Same-start entries just refresh the in-progress values.
func (r *Reconciler) handleKline(frame *models.Frame) ([]models.Event, error) {
	var entries []models.KlineEntry
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		return nil, fmt.Errorf("decode kline payload: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("empty kline payload")
	}

	bar := entries[0].Bar()

	r.mu.Lock()
	defer r.mu.Unlock()

	var events []models.Event
	if r.currentBar != nil && bar.Start > r.currentBar.Start {
		closed := *r.currentBar
		r.bars.Push(closed)
		events = append(events, models.Event{Topic: models.TopicOHLCV, Payload: closed})
	}
	r.currentBar = &bar
	return events, nil
}
