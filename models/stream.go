package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Frame is the envelope of every inbound websocket message. Data updates
// carry topic/type/data, control acknowledgments carry success/ret_msg and
// echo the request they answer. Exactly one of the two shapes is populated.
type Frame struct {
	Topic   string          `json:"topic,omitempty"`
	Type    string          `json:"type,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Success *bool           `json:"success,omitempty"`
	RetMsg  string          `json:"ret_msg,omitempty"`
	Request *Request        `json:"request,omitempty"`
}

// IsControl reports whether the frame is a control acknowledgment rather
// than a data update.
func (f *Frame) IsControl() bool {
	return f.Success != nil
}

// Payload type markers on data frames.
const (
	TypeSnapshot = "snapshot"
	TypeDelta    = "delta"
)

// Request is both the shape of outbound control frames and of the request
// echo inside acknowledgments.
type Request struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args,omitempty"`
}

// BookRow is one price level as it appears on the wire, in snapshots and in
// every delta sub-list. Bybit sends the price as a string.
type BookRow struct {
	Price  decimal.Decimal `json:"price"`
	Symbol string          `json:"symbol"`
	ID     int64           `json:"id"`
	Side   string          `json:"side"`
	Size   decimal.Decimal `json:"size"`
}

// Wire values of BookRow.Side.
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// BookDeltaPayload is the data body of an orderBook delta frame. The three
// lists must be applied in delete, insert, update order.
type BookDeltaPayload struct {
	Delete []BookRow `json:"delete"`
	Update []BookRow `json:"update"`
	Insert []BookRow `json:"insert"`
}

// TradeEntry is one public trade from the trade.<symbol> channel.
type TradeEntry struct {
	Timestamp     string          `json:"timestamp"`
	TradeTimeMs   int64           `json:"trade_time_ms"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	Price         decimal.Decimal `json:"price"`
	TickDirection string          `json:"tick_direction"`
	TradeID       string          `json:"trade_id"`
	CrossSeq      int64           `json:"cross_seq"`
}

// KlineEntry is one in-progress bar update from the klineV2 channel.
type KlineEntry struct {
	Start     int64           `json:"start"`
	End       int64           `json:"end"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Volume    decimal.Decimal `json:"volume"`
	Turnover  decimal.Decimal `json:"turnover"`
	Confirm   bool            `json:"confirm"`
	CrossSeq  int64           `json:"cross_seq"`
	Timestamp int64           `json:"timestamp"`
}

// InstrumentInfo mirrors the instrument_info snapshot record. Prices arrive
// scaled (E4 suffix = price * 10^4) as integers.
type InstrumentInfo struct {
	ID                     int64  `json:"id"`
	Symbol                 string `json:"symbol"`
	LastPriceE4            int64  `json:"last_price_e4"`
	LastTickDirection      string `json:"last_tick_direction"`
	PrevPrice24hE4         int64  `json:"prev_price_24h_e4"`
	Price24hPcntE6         int64  `json:"price_24h_pcnt_e6"`
	HighPrice24hE4         int64  `json:"high_price_24h_e4"`
	LowPrice24hE4          int64  `json:"low_price_24h_e4"`
	PrevPrice1hE4          int64  `json:"prev_price_1h_e4"`
	MarkPriceE4            int64  `json:"mark_price_e4"`
	IndexPriceE4           int64  `json:"index_price_e4"`
	OpenInterest           int64  `json:"open_interest"`
	OpenValueE8            int64  `json:"open_value_e8"`
	TotalTurnoverE8        int64  `json:"total_turnover_e8"`
	Turnover24hE8          int64  `json:"turnover_24h_e8"`
	TotalVolume            int64  `json:"total_volume"`
	Volume24h              int64  `json:"volume_24h"`
	FundingRateE6          int64  `json:"funding_rate_e6"`
	PredictedFundingRateE6 int64  `json:"predicted_funding_rate_e6"`
	NextFundingTime        string `json:"next_funding_time"`
	CountdownHour          int64  `json:"countdown_hour"`
	CreatedAt              string `json:"created_at"`
	UpdatedAt              string `json:"updated_at"`
}

// InstrumentDelta is a partial instrument update: only fields present on the
// wire are non-nil, everything else leaves the held record untouched.
type InstrumentDelta struct {
	ID                     *int64  `json:"id,omitempty"`
	Symbol                 *string `json:"symbol,omitempty"`
	LastPriceE4            *int64  `json:"last_price_e4,omitempty"`
	LastTickDirection      *string `json:"last_tick_direction,omitempty"`
	PrevPrice24hE4         *int64  `json:"prev_price_24h_e4,omitempty"`
	Price24hPcntE6         *int64  `json:"price_24h_pcnt_e6,omitempty"`
	HighPrice24hE4         *int64  `json:"high_price_24h_e4,omitempty"`
	LowPrice24hE4          *int64  `json:"low_price_24h_e4,omitempty"`
	PrevPrice1hE4          *int64  `json:"prev_price_1h_e4,omitempty"`
	MarkPriceE4            *int64  `json:"mark_price_e4,omitempty"`
	IndexPriceE4           *int64  `json:"index_price_e4,omitempty"`
	OpenInterest           *int64  `json:"open_interest,omitempty"`
	OpenValueE8            *int64  `json:"open_value_e8,omitempty"`
	TotalTurnoverE8        *int64  `json:"total_turnover_e8,omitempty"`
	Turnover24hE8          *int64  `json:"turnover_24h_e8,omitempty"`
	TotalVolume            *int64  `json:"total_volume,omitempty"`
	Volume24h              *int64  `json:"volume_24h,omitempty"`
	FundingRateE6          *int64  `json:"funding_rate_e6,omitempty"`
	PredictedFundingRateE6 *int64  `json:"predicted_funding_rate_e6,omitempty"`
	NextFundingTime        *string `json:"next_funding_time,omitempty"`
	CountdownHour          *int64  `json:"countdown_hour,omitempty"`
	CreatedAt              *string `json:"created_at,omitempty"`
	UpdatedAt              *string `json:"updated_at,omitempty"`
}

// InstrumentDeltaPayload is the data body of an instrument_info delta frame.
type InstrumentDeltaPayload struct {
	Delete []InstrumentDelta `json:"delete"`
	Update []InstrumentDelta `json:"update"`
	Insert []InstrumentDelta `json:"insert"`
}

// Apply merges the delta's present fields into the instrument record and
// reports whether the last traded price was among them.
func (d *InstrumentDelta) Apply(info *InstrumentInfo) (lastPrice bool) {
	if d.ID != nil {
		info.ID = *d.ID
	}
	if d.Symbol != nil {
		info.Symbol = *d.Symbol
	}
	if d.LastPriceE4 != nil {
		info.LastPriceE4 = *d.LastPriceE4
		lastPrice = true
	}
	if d.LastTickDirection != nil {
		info.LastTickDirection = *d.LastTickDirection
	}
	if d.PrevPrice24hE4 != nil {
		info.PrevPrice24hE4 = *d.PrevPrice24hE4
	}
	if d.Price24hPcntE6 != nil {
		info.Price24hPcntE6 = *d.Price24hPcntE6
	}
	if d.HighPrice24hE4 != nil {
		info.HighPrice24hE4 = *d.HighPrice24hE4
	}
	if d.LowPrice24hE4 != nil {
		info.LowPrice24hE4 = *d.LowPrice24hE4
	}
	if d.PrevPrice1hE4 != nil {
		info.PrevPrice1hE4 = *d.PrevPrice1hE4
	}
	if d.MarkPriceE4 != nil {
		info.MarkPriceE4 = *d.MarkPriceE4
	}
	if d.IndexPriceE4 != nil {
		info.IndexPriceE4 = *d.IndexPriceE4
	}
	if d.OpenInterest != nil {
		info.OpenInterest = *d.OpenInterest
	}
	if d.OpenValueE8 != nil {
		info.OpenValueE8 = *d.OpenValueE8
	}
	if d.TotalTurnoverE8 != nil {
		info.TotalTurnoverE8 = *d.TotalTurnoverE8
	}
	if d.Turnover24hE8 != nil {
		info.Turnover24hE8 = *d.Turnover24hE8
	}
	if d.TotalVolume != nil {
		info.TotalVolume = *d.TotalVolume
	}
	if d.Volume24h != nil {
		info.Volume24h = *d.Volume24h
	}
	if d.FundingRateE6 != nil {
		info.FundingRateE6 = *d.FundingRateE6
	}
	if d.PredictedFundingRateE6 != nil {
		info.PredictedFundingRateE6 = *d.PredictedFundingRateE6
	}
	if d.NextFundingTime != nil {
		info.NextFundingTime = *d.NextFundingTime
	}
	if d.CountdownHour != nil {
		info.CountdownHour = *d.CountdownHour
	}
	if d.CreatedAt != nil {
		info.CreatedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		info.UpdatedAt = *d.UpdatedAt
	}
	return lastPrice
}

// Position is the account position record from the private position channel.
type Position struct {
	UserID           int64           `json:"user_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Size             int64           `json:"size"`
	PositionValue    decimal.Decimal `json:"position_value"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	LiqPrice         decimal.Decimal `json:"liq_price"`
	BustPrice        decimal.Decimal `json:"bust_price"`
	Leverage         decimal.Decimal `json:"leverage"`
	OrderMargin      decimal.Decimal `json:"order_margin"`
	PositionMargin   decimal.Decimal `json:"position_margin"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	TakeProfit       decimal.Decimal `json:"take_profit"`
	StopLoss         decimal.Decimal `json:"stop_loss"`
	RealisedPnl      decimal.Decimal `json:"realised_pnl"`
	CumRealisedPnl   decimal.Decimal `json:"cum_realised_pnl"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
	PositionStatus   string          `json:"position_status"`
	PositionSeq      int64           `json:"position_seq"`
}

// Execution is one own fill from the private execution channel.
type Execution struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderID     string          `json:"order_id"`
	ExecID      string          `json:"exec_id"`
	OrderLinkID string          `json:"order_link_id"`
	Price       decimal.Decimal `json:"price"`
	OrderQty    decimal.Decimal `json:"order_qty"`
	ExecType    string          `json:"exec_type"`
	ExecQty     decimal.Decimal `json:"exec_qty"`
	ExecFee     decimal.Decimal `json:"exec_fee"`
	LeavesQty   decimal.Decimal `json:"leaves_qty"`
	IsMaker     bool            `json:"is_maker"`
	TradeTime   string          `json:"trade_time"`
}

// Order is one order event from the private order channel.
type Order struct {
	OrderID     string          `json:"order_id"`
	OrderLinkID string          `json:"order_link_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderType   string          `json:"order_type"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	TimeInForce string          `json:"time_in_force"`
	CreateType  string          `json:"create_type"`
	CancelType  string          `json:"cancel_type"`
	OrderStatus string          `json:"order_status"`
	// Pointer so a payload that omits the field stays distinguishable from
	// an explicit zero.
	LeavesQty  *decimal.Decimal `json:"leaves_qty"`
	CumExecQty decimal.Decimal  `json:"cum_exec_qty"`
	Timestamp   string          `json:"timestamp"`
}

// Terminal order statuses: the order leaves the open set.
const (
	OrderStatusCanceled = "Cancelled"
	OrderStatusFilled   = "Filled"
)

// Terminal reports whether the order has left the open set: a terminal
// status, or a remaining quantity that was reported and reached zero. A
// payload omitting the remaining quantity keeps the order open.
func (o *Order) Terminal() bool {
	switch o.OrderStatus {
	case OrderStatusFilled, OrderStatusCanceled, "Canceled":
		return true
	}
	return o.LeavesQty != nil && o.LeavesQty.Sign() <= 0
}
