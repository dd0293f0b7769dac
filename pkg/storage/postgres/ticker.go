package postgres

import (
	"context"
	"time"

	"tickboard/internal/feed/memorystore"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// InsertTickers appends records, skipping any (symbol, source time) pair already archived. It
// returns the number of rows written.
func (p *PostgresClient) InsertTickers(ctx context.Context, records []*TickerRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "source_time"},
		},
		DoNothing: true,
	}).Create(records)

	return tx.RowsAffected, tx.Error
}

// LatestTicker returns the most recent archived tick for symbol.
func (p *PostgresClient) LatestTicker(ctx context.Context, symbol string) (*TickerRecord, error) {
	var rec TickerRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("source_time DESC").
		First(&rec).Error

	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteTickersBefore prunes ticks received before the cutoff.
func (p *PostgresClient) DeleteTickersBefore(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("received_at < ?", before).
		Delete(&TickerRecord{})

	return tx.RowsAffected, tx.Error
}

// ToTickerRecord converts a stored record into a row for archiving. receivedAt stands in for the
// source time when the feed sent none.
func ToTickerRecord(symbol string, r memorystore.Record, receivedAt time.Time) *TickerRecord {
	rec := &TickerRecord{
		Symbol:     symbol,
		SourceTime: receivedAt.UTC(),
		Open:       nullDecimal(r.Open),
		High:       nullDecimal(r.High),
		Low:        nullDecimal(r.Low),
		Close:      nullDecimal(r.Close),
		Volume:     nullDecimal(r.Volume),
		ReceivedAt: receivedAt.UTC(),
	}
	if ts, ok := r.Timestamp.Time(); ok {
		rec.SourceTime = ts.UTC()
		rec.HasSourceTime = true
	}
	return rec
}

func nullDecimal(v memorystore.Value) decimal.NullDecimal {
	d, ok := v.Decimal()
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}
