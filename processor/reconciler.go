// Package processor reconstructs server-authoritative state from the stream:
// each inbound data frame is merged into the order book, position, open
// orders, executions and bar history, and notable changes come back as
// events for the dispatch queue.
package processor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"bybitflow/internal/book"
	"bybitflow/internal/ring"
	"bybitflow/logger"
	"bybitflow/models"
)

// History capacities. Oldest entries are evicted first.
const (
	TradeHistoryCap = 200
	FillHistoryCap  = 50
	OrderHistoryCap = 50
	BarHistoryCap   = 1000
)

// Reconciler applies one topic's worth of mutations per frame and decides
// which of them deserve an event. All derived state except the book trees is
// guarded by one RWMutex so the public accessors are safe from any
// goroutine; the book publishes its own immutable snapshots.
type Reconciler struct {
	log    *logger.Entry
	symbol string
	period string

	tradeChannel      string
	instrumentChannel string
	bookChannel       string
	klineChannel      string

	book *book.Book

	mu         sync.RWMutex
	lastPrice  decimal.Decimal
	instrument *models.InstrumentInfo
	position   *models.Position
	openOrders map[string]models.Order
	trades     *ring.Buffer[models.TradeEntry]
	fills      *ring.Buffer[models.Execution]
	orderHist  *ring.Buffer[models.Order]
	bars       *ring.Buffer[models.Bar]
	currentBar *models.Bar
}

// New creates a reconciler for one symbol and bar period.
func New(log *logger.Log, symbol, period string) *Reconciler {
	return &Reconciler{
		log:               log.WithComponent("reconciler").WithFields(logger.Fields{"symbol": symbol}),
		symbol:            symbol,
		period:            period,
		tradeChannel:      models.TradeChannel(symbol),
		instrumentChannel: models.InstrumentChannel(symbol),
		bookChannel:       models.OrderBookChannel(symbol),
		klineChannel:      models.KlineChannel(period, symbol),
		book:              book.New(),
		openOrders:        make(map[string]models.Order),
		trades:            ring.New[models.TradeEntry](TradeHistoryCap),
		fills:             ring.New[models.Execution](FillHistoryCap),
		orderHist:         ring.New[models.Order](OrderHistoryCap),
		bars:              ring.New[models.Bar](BarHistoryCap),
	}
}

// Handle routes one data frame to its topic handler and returns the events
// to raise. A nil slice with nil error means the frame mutated state without
// anything notable happening.
func (r *Reconciler) Handle(frame *models.Frame) ([]models.Event, error) {
	switch frame.Topic {
	case r.tradeChannel:
		return r.handleTrade(frame)
	case r.instrumentChannel:
		return r.handleInstrument(frame)
	case r.bookChannel:
		return r.handleOrderBook(frame)
	case r.klineChannel:
		return r.handleKline(frame)
	case models.ChannelPosition:
		return r.handlePosition(frame)
	case models.ChannelExecution:
		return r.handleExecution(frame)
	case models.ChannelOrder:
		return r.handleOrder(frame)
	}
	return nil, fmt.Errorf("unhandled topic %q", frame.Topic)
}

func sortOrders(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].OrderID < orders[j].OrderID
	})
}
