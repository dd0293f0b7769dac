package stream

import "tickboard/internal/feed/memorystore"

// TickerPayload is the per-symbol object carried in a feed frame, e.g.
// {"BTCUSDT": {"timestamp": 1700000000000, "open": "42000.10", ...}}.
// Every field is optional and may be a number, a numeric string or null.
type TickerPayload struct {
	Timestamp memorystore.Value `json:"timestamp"` // Source timestamp (milliseconds since epoch)
	Open      memorystore.Value `json:"open"`      // Opening price
	High      memorystore.Value `json:"high"`      // Highest price
	Low       memorystore.Value `json:"low"`       // Lowest price
	Close     memorystore.Value `json:"close"`     // Latest price
	Volume    memorystore.Value `json:"volume"`    // Traded volume
}

func (p TickerPayload) record(symbol string) memorystore.Record {
	return memorystore.Record{
		Symbol:    symbol,
		Timestamp: p.Timestamp,
		Open:      p.Open,
		High:      p.High,
		Low:       p.Low,
		Close:     p.Close,
		Volume:    p.Volume,
	}
}
