package archive

import (
	"context"
	"sync"
	"time"

	"tickboard/config"
	"tickboard/internal/feed/memorystore"
	"tickboard/internal/metrics"
	"tickboard/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Sink persists converted ticks.
type Sink interface {
	InsertTickers(ctx context.Context, records []*postgres.TickerRecord) (int64, error)
}

type job struct {
	batch      memorystore.Batch
	receivedAt time.Time
}

// Archiver copies applied batches to a Sink on its own goroutine. Enqueue
// never blocks: when the buffer is full the batch is dropped and counted.
type Archiver struct {
	sink    Sink
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

func New(sink Sink, cfg config.ArchiveConfig, logger *zap.Logger) *Archiver {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Archiver{
		sink:    sink,
		timeout: timeout,
		log:     logger.Named("archive"),
		now:     time.Now,
		jobs:    make(chan job, size),
		done:    make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (a *Archiver) Start() {
	go a.run()
}

// Enqueue hands a batch to the writer. It reports false if the batch was
// dropped.
func (a *Archiver) Enqueue(batch memorystore.Batch) bool {
	if len(batch) == 0 {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}

	select {
	case a.jobs <- job{batch: batch, receivedAt: a.now()}:
		return true
	default:
		metrics.ArchiveDrops.Inc()
		return false
	}
}

// Stop flushes what is buffered and waits for the writer to exit. Start must
// have been called.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Archiver) run() {
	defer close(a.done)
	for j := range a.jobs {
		a.write(j)
	}
}

func (a *Archiver) write(j job) {
	records := make([]*postgres.TickerRecord, 0, len(j.batch))
	for _, p := range j.batch {
		records = append(records, postgres.ToTickerRecord(p.Symbol, p.Record, j.receivedAt))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	n, err := a.sink.InsertTickers(ctx, records)
	if err != nil {
		metrics.ArchiveErrors.Inc()
		a.log.Warn("failed to archive ticks", zap.Int("records", len(records)), zap.Error(err))
		return
	}
	a.log.Debug("archived ticks", zap.Int("records", len(records)), zap.Int64("written", n))
}
