package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes archived ticks received before a cutoff.
type Pruner interface {
	DeleteTickersBefore(ctx context.Context, before time.Time) (int64, error)
}

// MidnightPruner trims the archive once at startup, then at every UTC
// midnight.
type MidnightPruner struct {
	Pruner    Pruner
	Retention time.Duration
	Timeout   time.Duration
	Logger    *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Run blocks until ctx is done.
func (m *MidnightPruner) Run(ctx context.Context) error {
	if m.now == nil {
		m.now = time.Now
	}
	if m.after == nil {
		m.after = time.After
	}
	if m.Timeout <= 0 {
		m.Timeout = time.Minute
	}

	// Run immediately once at startup
	m.runOnce(ctx)

	for {
		now := m.now()
		select {
		case <-ctx.Done():
			return nil
		case <-m.after(nextMidnight(now).Sub(now)):
			m.runOnce(ctx)
		}
	}
}

func (m *MidnightPruner) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	cutoff := m.now().Add(-m.Retention)
	n, err := m.Pruner.DeleteTickersBefore(ctx, cutoff)
	if err != nil {
		m.Logger.Warn("failed to prune archive", zap.Time("cutoff", cutoff), zap.Error(err))
		return
	}
	m.Logger.Info("pruned archive", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
}

func nextMidnight(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
