package processor

import (
	"encoding/json"
	"fmt"

	"bybitflow/models"
)

// handlePosition stores the position wholesale but only raises an event when
// the integer size or the wallet balance moved. Frames for other symbols are
// ignored entirely.
func (r *Reconciler) handlePosition(frame *models.Frame) ([]models.Event, error) {
	var positions []models.Position
	if err := json.Unmarshal(frame.Data, &positions); err != nil {
		return nil, fmt.Errorf("decode position payload: %w", err)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("empty position payload")
	}

	pos := positions[0]
	if pos.Symbol != r.symbol {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.position == nil ||
		r.position.Size != pos.Size ||
		!r.position.WalletBalance.Equal(pos.WalletBalance)
	r.position = &pos

	if !changed {
		return nil, nil
	}
	return []models.Event{{Topic: models.TopicPosition, Payload: pos}}, nil
}

// handleExecution appends own fills for the configured symbol and raises one
// event per frame carrying the filtered batch.
func (r *Reconciler) handleExecution(frame *models.Frame) ([]models.Event, error) {
	var fills []models.Execution
	if err := json.Unmarshal(frame.Data, &fills); err != nil {
		return nil, fmt.Errorf("decode execution payload: %w", err)
	}

	matched := make([]models.Execution, 0, len(fills))
	r.mu.Lock()
	for _, fill := range fills {
		if fill.Symbol != r.symbol {
			continue
		}
		r.fills.Push(fill)
		matched = append(matched, fill)
	}
	r.mu.Unlock()

	return []models.Event{{Topic: models.TopicExecution, Payload: matched}}, nil
}

// handleOrder walks the order lifecycle: terminal orders leave the open set
// and land in this frame's closed list, everything else upserts the open set
// by identifier. One event per frame, but only when the frame carried
// entries for the configured symbol.
func (r *Reconciler) handleOrder(frame *models.Frame) ([]models.Event, error) {
	var orders []models.Order
	if err := json.Unmarshal(frame.Data, &orders); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []models.Order
	matchedAny := false
	for _, order := range orders {
		if order.Symbol != r.symbol {
			continue
		}
		matchedAny = true
		r.orderHist.Push(order)

		if order.Terminal() {
			delete(r.openOrders, order.OrderID)
			closed = append(closed, order)
		} else {
			r.openOrders[order.OrderID] = order
		}
	}

	if !matchedAny {
		return nil, nil
	}

	open := make([]models.Order, 0, len(r.openOrders))
	for _, order := range r.openOrders {
		open = append(open, order)
	}
	sortOrders(open)

	update := models.OrderUpdate{Open: open, Closed: closed}
	return []models.Event{{Topic: models.TopicOrder, Payload: update}}, nil
}
