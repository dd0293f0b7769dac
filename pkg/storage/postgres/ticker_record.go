package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickerRecord is one archived tick. Prices keep the exact wire precision; fields the feed left
// out are NULL.
type TickerRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol     string    `gorm:"type:text;not null;index:idx_ticker_symbol;index:idx_ticker_symbol_source_time,unique"`
	SourceTime time.Time `gorm:"not null;index:idx_ticker_symbol_source_time,unique"`

	// HasSourceTime is false when the feed sent no usable timestamp and SourceTime holds the
	// receive time instead.
	HasSourceTime bool `gorm:"not null"`

	Open   decimal.NullDecimal `gorm:"type:numeric"`
	High   decimal.NullDecimal `gorm:"type:numeric"`
	Low    decimal.NullDecimal `gorm:"type:numeric"`
	Close  decimal.NullDecimal `gorm:"type:numeric"`
	Volume decimal.NullDecimal `gorm:"type:numeric"`

	ReceivedAt time.Time `gorm:"not null;index:idx_ticker_received_at"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (TickerRecord) TableName() string {
	return "ticker_record"
}
