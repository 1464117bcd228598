package models

import "fmt"

// Topic identifies the logical event stream a payload belongs to. The set is
// closed: every raised event carries exactly one of these values.
type Topic string

const (
	TopicTrade      Topic = "trade"
	TopicInstrument Topic = "instrument"
	TopicOHLCV      Topic = "ohlcv"
	TopicPosition   Topic = "position"
	TopicExecution  Topic = "execution"
	TopicOrder      Topic = "order"
)

// Topics returns every known topic.
func Topics() []Topic {
	return []Topic{
		TopicTrade,
		TopicInstrument,
		TopicOHLCV,
		TopicPosition,
		TopicExecution,
		TopicOrder,
	}
}

// Event is a single dispatchable unit: the topic it was raised under and the
// typed payload for that topic.
type Event struct {
	Topic   Topic
	Payload interface{}
}

// Private channels never gate readiness: they stay silent for accounts with
// no position or orders.
const (
	ChannelPosition  = "position"
	ChannelExecution = "execution"
	ChannelOrder     = "order"
)

// TradeChannel returns the public trade channel name for a symbol.
func TradeChannel(symbol string) string {
	return fmt.Sprintf("trade.%s", symbol)
}

// InstrumentChannel returns the 100ms instrument info channel for a symbol.
func InstrumentChannel(symbol string) string {
	return fmt.Sprintf("instrument_info.100ms.%s", symbol)
}

// OrderBookChannel returns the 200-level 100ms order book channel for a symbol.
func OrderBookChannel(symbol string) string {
	return fmt.Sprintf("orderBook_200.100ms.%s", symbol)
}

// KlineChannel returns the klineV2 channel for a bar period and symbol.
func KlineChannel(period, symbol string) string {
	return fmt.Sprintf("klineV2.%s.%s", period, symbol)
}

// DefaultChannels builds the full default subscription list for one symbol.
func DefaultChannels(symbol, period string) []string {
	return []string{
		TradeChannel(symbol),
		InstrumentChannel(symbol),
		OrderBookChannel(symbol),
		KlineChannel(period, symbol),
		ChannelPosition,
		ChannelExecution,
		ChannelOrder,
	}
}

// IsPrivateChannel reports whether a channel requires authentication.
func IsPrivateChannel(name string) bool {
	switch name {
	case ChannelPosition, ChannelExecution, ChannelOrder:
		return true
	}
	return false
}

var klinePeriods = map[string]struct{}{
	"1": {}, "3": {}, "5": {}, "15": {}, "30": {}, "60": {},
	"120": {}, "240": {}, "360": {}, "D": {}, "W": {}, "M": {},
}

// ValidKlinePeriod reports whether the period is one of the fixed intervals
// the klineV2 stream supports.
func ValidKlinePeriod(period string) bool {
	_, ok := klinePeriods[period]
	return ok
}
