package memorystore

import "time"

// Record is the latest known bar for one symbol.
// Numeric fields keep their wire form; use Row for display values.
type Record struct {
	Symbol    string `json:"symbol"`    // Trading symbol (e.g., "BTCUSDT")
	Timestamp Value  `json:"timestamp"` // Source timestamp, usually milliseconds since epoch
	Open      Value  `json:"open"`      // Opening price
	High      Value  `json:"high"`      // Highest price
	Low       Value  `json:"low"`       // Lowest price
	Close     Value  `json:"close"`     // Closing (latest) price
	Volume    Value  `json:"volume"`    // Traded volume
}

func (r Record) clone() Record {
	return Record{
		Symbol:    r.Symbol,
		Timestamp: r.Timestamp.clone(),
		Open:      r.Open.clone(),
		High:      r.High.clone(),
		Low:       r.Low.clone(),
		Close:     r.Close.clone(),
		Volume:    r.Volume.clone(),
	}
}

// Row is the display projection of a Record.
type Row struct {
	Symbol    string     `json:"symbol"`
	Timestamp *time.Time `json:"timestamp"` // nil when absent or unparseable
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Close     float64    `json:"close"`
	Volume    float64    `json:"volume"`
}

// Row coerces the record's fields for display.
func (r Record) Row() Row {
	row := Row{
		Symbol: r.Symbol,
		Open:   r.Open.Float64(),
		High:   r.High.Float64(),
		Low:    r.Low.Float64(),
		Close:  r.Close.Float64(),
		Volume: r.Volume.Float64(),
	}
	if ts, ok := r.Timestamp.Time(); ok {
		row.Timestamp = &ts
	}
	return row
}

// Pair is one (symbol, record) entry of a Batch.
type Pair struct {
	Symbol string
	Record Record
}

// Batch is every pair decoded from a single frame, in frame order.
type Batch []Pair

// Symbols lists the batch's symbols in order.
func (b Batch) Symbols() []string {
	out := make([]string, len(b))
	for i, p := range b {
		out[i] = p.Symbol
	}
	return out
}
