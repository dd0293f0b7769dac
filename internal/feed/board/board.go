package board

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"tickboard/config"
	"tickboard/internal/feed/archive"
	"tickboard/internal/feed/connmgr"
	"tickboard/internal/feed/memorystore"
	"tickboard/internal/feed/retention"
	"tickboard/pkg/storage/postgres"
	"tickboard/pkg/wsfeed"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ArchiveStore is the tick history: the archiver writes to it and the
// retention job prunes it.
type ArchiveStore interface {
	archive.Sink
	retention.Pruner
}

type options struct {
	dialer  wsfeed.Dialer
	clock   connmgr.Clock
	archive ArchiveStore
}

type Option func(*options)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d wsfeed.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock replaces the clock used for reconnect timers.
func WithClock(c connmgr.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithArchiveStore supplies the archive instead of connecting to Postgres.
// It only takes effect when the archive is enabled.
func WithArchiveStore(s ArchiveStore) Option {
	return func(o *options) { o.archive = s }
}

// Board ties the feed together: one symbol table, one connection manager and
// the optional archive, with an explicit lifecycle.
type Board struct {
	cfg *config.Config
	log *zap.Logger

	store    *memorystore.TickerStore
	manager  *connmgr.Manager
	archiver *archive.Archiver
	history  ArchiveStore
	closer   io.Closer

	closeOnce sync.Once
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Board, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Board{
		cfg:   cfg,
		log:   logger.Named("board"),
		store: memorystore.NewTickerStore(),
	}

	backoff, err := connmgr.NewBackoff(cfg.Reconnect)
	if err != nil {
		return nil, err
	}

	if o.dialer == nil {
		o.dialer = wsfeed.NewWSDialer(cfg.Feed.HandshakeTimeout, cfg.Feed.ReadTimeout, logger)
	}

	if cfg.Archive.Enabled {
		if err := b.openArchive(o.archive); err != nil {
			return nil, err
		}
	}

	b.manager, err = connmgr.New(connmgr.Options{
		URL:                cfg.Feed.URL,
		Dialer:             o.dialer,
		Store:              b.store,
		Backoff:            backoff,
		RetryOnOpenFailure: cfg.Reconnect.RetryOnOpenFailure,
		Listener:           b,
		Clock:              o.clock,
		Logger:             logger,
	})
	if err != nil {
		b.closeArchive()
		return nil, err
	}

	return b, nil
}

func (b *Board) openArchive(store ArchiveStore) error {
	if store == nil {
		client, err := postgres.InitializeAndMigrateTickerRecord(b.cfg.Postgres, b.cfg.Env, b.cfg.Archive.CreateDB)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		store = client
		b.closer = client
	}
	b.history = store
	b.archiver = archive.New(store, b.cfg.Archive, b.log)
	b.archiver.Start()
	return nil
}

func (b *Board) closeArchive() {
	if b.archiver != nil {
		b.archiver.Stop()
	}
	if b.closer != nil {
		if err := b.closer.Close(); err != nil {
			b.log.Warn("failed to close archive", zap.Error(err))
		}
	}
}

// Run connects and keeps the board alive until ctx is done, then tears it
// down.
func (b *Board) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	b.manager.Connect()

	if b.history != nil && b.cfg.Archive.Retention > 0 {
		pruner := &retention.MidnightPruner{
			Pruner:    b.history,
			Retention: b.cfg.Archive.Retention,
			Logger:    b.log.Named("retention"),
		}
		g.Go(func() error { return pruner.Run(ctx) })
	}

	if b.cfg.Feed.StatusInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(b.cfg.Feed.StatusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					st := b.Status()
					b.log.Info("feed status",
						zap.Stringer("state", st.State),
						zap.Int("symbols", st.Symbols),
						zap.String("last_error", st.LastError),
					)
				}
			}
		})
	}

	<-ctx.Done()
	err := g.Wait()
	b.Close()
	return err
}

// Close stops the connection, flushes the archive and discards the symbol
// table. Safe to call more than once.
func (b *Board) Close() {
	b.closeOnce.Do(func() {
		b.manager.Close()
		b.closeArchive()
		b.store.Discard()
		b.log.Info("board closed")
	})
}

// Reconnect drops the current connection and dials again.
func (b *Board) Reconnect() {
	b.log.Info("manual reconnect requested")
	b.manager.Connect()
}

func (b *Board) Status() connmgr.Status {
	return b.manager.Status()
}

// Rows returns the display rows sorted by symbol.
func (b *Board) Rows() []memorystore.Row {
	return b.store.Rows()
}

// Row returns the display row for one symbol.
func (b *Board) Row(symbol string) (memorystore.Row, bool) {
	rec, ok := b.store.Get(symbol)
	if !ok {
		return memorystore.Row{}, false
	}
	return rec.Row(), true
}

// OnStateChange implements connmgr.Listener.
func (b *Board) OnStateChange(st connmgr.Status) {
	b.log.Debug("state changed", zap.Stringer("state", st.State), zap.String("attempt", st.Attempt))
}

// OnBatch implements connmgr.Listener.
func (b *Board) OnBatch(batch memorystore.Batch) {
	if b.archiver != nil {
		b.archiver.Enqueue(batch)
	}
}
