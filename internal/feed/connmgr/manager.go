package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tickboard/internal/feed/memorystore"
	"tickboard/internal/feed/stream"
	"tickboard/internal/metrics"
	"tickboard/pkg/wsfeed"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the part of the symbol table the manager writes to. Apply runs
// inside the event loop and must not call back into the Manager.
type Store interface {
	Apply(batch memorystore.Batch)
	Len() int
}

// Listener observes the manager. Callbacks are delivered one at a time and in
// event order on a goroutine outside the event loop, so a callback may call
// back into the Manager. A slow callback delays later callbacks only.
type Listener interface {
	OnStateChange(status Status)
	OnBatch(batch memorystore.Batch)
}

// DecodeFunc turns one frame into a batch.
type DecodeFunc func(frame []byte) (memorystore.Batch, error)

type Options struct {
	URL     string
	Dialer  wsfeed.Dialer
	Store   Store
	Backoff Backoff

	// RetryOnOpenFailure schedules a reconnect after a failed dial. When
	// false a failed dial ends in Failed.
	RetryOnOpenFailure bool

	Listener Listener   // optional
	Decode   DecodeFunc // defaults to stream.Decode
	Clock    Clock      // defaults to the system clock
	Logger   *zap.Logger
}

// Manager owns the single streaming connection. All transitions run through
// one serialized event loop: events are queued by post and drained by
// whichever goroutine finds the loop idle, so transitions never interleave.
// Only Close waits, and only for its own event to be applied.
type Manager struct {
	url       string
	dialer    wsfeed.Dialer
	store     Store
	backoff   Backoff
	retryOpen bool
	listener  Listener
	decode    DecodeFunc
	clock     Clock
	log       *zap.Logger

	mu       sync.Mutex
	queue    []Event
	draining bool

	// listener deliveries
	nmu        sync.Mutex
	notes      []func()
	delivering bool

	// owned by the event loop
	state      State
	lastErr    string
	since      time.Time
	attempt    owned[*attempt]
	timer      owned[*reconnectTimer]
	attemptSeq uint64
	timerSeq   uint64

	status atomic.Pointer[Status]
}

func New(opts Options) (*Manager, error) {
	switch {
	case opts.URL == "":
		return nil, errors.New("connmgr: URL is required")
	case opts.Dialer == nil:
		return nil, errors.New("connmgr: Dialer is required")
	case opts.Store == nil:
		return nil, errors.New("connmgr: Store is required")
	case opts.Backoff == nil:
		return nil, errors.New("connmgr: Backoff is required")
	}
	if opts.Decode == nil {
		opts.Decode = stream.Decode
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		url:       opts.URL,
		dialer:    opts.Dialer,
		store:     opts.Store,
		backoff:   opts.Backoff,
		retryOpen: opts.RetryOnOpenFailure,
		listener:  opts.Listener,
		decode:    opts.Decode,
		clock:     opts.Clock,
		log:       opts.Logger.Named("connmgr"),
		state:     Idle,
		since:     opts.Clock.Now(),
	}
	m.publish()
	return m, nil
}

// Connect drops any current connection and pending reconnect, then starts a
// new attempt.
func (m *Manager) Connect() {
	m.post(connectRequested{})
}

// Close cancels any pending reconnect and closes the connection. It returns
// once the manager is Closed; a frame already being applied finishes first and
// nothing is applied afterwards. The manager stays Closed until the next
// Connect. Safe to call repeatedly, including from a Listener callback.
func (m *Manager) Close() {
	done := make(chan struct{})
	m.post(UserClose{done: done})
	<-done
}

// Status returns the latest published status.
func (m *Manager) Status() Status {
	st := *m.status.Load()
	st.Symbols = m.store.Len()
	return st
}

func (m *Manager) post(ev Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.step(next)

		m.mu.Lock()
	}
	m.queue = nil
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) step(ev Event) {
	switch e := ev.(type) {
	case connectRequested:
		m.startAttempt()

	case UserClose:
		m.timer.release()
		m.attempt.release()
		m.setState(Closed)
		if e.done != nil {
			close(e.done)
		}

	case ReconnectTimerFired:
		cur, ok := m.timer.get()
		if !ok || cur.seq != e.Timer {
			return
		}
		m.timer.release()
		m.startAttempt()

	case Opened:
		cur, ok := m.current(e.Attempt)
		if !ok || cur.conn != nil {
			// dial finished after its attempt was released
			_ = e.Conn.Close()
			return
		}
		cur.conn = e.Conn
		m.backoff.Reset()
		m.lastErr = ""
		m.setState(Open)
		go m.read(cur.seq, e.Conn)

	case FrameReceived:
		if _, ok := m.current(e.Attempt); !ok || m.state != Open {
			return
		}
		m.handleFrame(e.Frame, e.Binary)

	case TransportError:
		cur, ok := m.current(e.Attempt)
		if !ok {
			return
		}
		wasOpen := cur.conn != nil
		m.attempt.release()

		if wasOpen {
			err := &TransportRuntimeError{Err: e.Err}
			m.lastErr = err.Error()
			m.log.Warn("connection error", zap.String("attempt", cur.id), zap.Error(err))
			m.setState(Error)
			m.scheduleReconnect()
			return
		}

		err := &TransportOpenError{URL: m.url, Err: e.Err}
		m.lastErr = err.Error()
		if !m.retryOpen {
			m.log.Error("connection failed, not retrying", zap.String("attempt", cur.id), zap.Error(err))
			m.setState(Failed)
			return
		}
		m.log.Warn("connection failed", zap.String("attempt", cur.id), zap.Error(err))
		m.setState(Error)
		m.scheduleReconnect()

	case TransportClosed:
		cur, ok := m.current(e.Attempt)
		if !ok {
			return
		}
		m.attempt.release()
		m.log.Info("connection closed",
			zap.String("attempt", cur.id),
			zap.Int("code", e.Code),
			zap.String("reason", e.Reason),
		)
		m.setState(Closed)
		m.scheduleReconnect()
	}
}

func (m *Manager) current(seq uint64) (*attempt, bool) {
	cur, ok := m.attempt.get()
	if !ok || cur.seq != seq {
		return nil, false
	}
	return cur, true
}

func (m *Manager) startAttempt() {
	m.timer.release()
	m.attempt.release()

	m.attemptSeq++
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		seq:    m.attemptSeq,
		id:     uuid.NewString(),
		cancel: cancel,
	}
	m.attempt.replace(a)
	metrics.ConnectAttempts.Inc()

	m.log.Info("connecting", zap.String("url", m.url), zap.String("attempt", a.id))
	m.setState(Connecting)

	go m.dial(ctx, a.seq)
}

func (m *Manager) dial(ctx context.Context, seq uint64) {
	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		m.post(TransportError{Attempt: seq, Err: err})
		return
	}
	m.post(Opened{Attempt: seq, Conn: conn})
}

// read pumps frames from one connection into the event loop until it fails.
// A read failure is reported as an error followed by a close.
func (m *Manager) read(seq uint64, conn wsfeed.Conn) {
	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			var ce *wsfeed.CloseError
			if errors.As(err, &ce) {
				m.post(TransportClosed{Attempt: seq, Code: ce.Code, Reason: ce.Reason})
				return
			}
			m.post(TransportError{Attempt: seq, Err: err})
			m.post(TransportClosed{Attempt: seq, Code: wsfeed.CloseAbnormal, Reason: err.Error()})
			return
		}
		m.post(FrameReceived{Attempt: seq, Binary: mt == wsfeed.BinaryMessage, Frame: frame})
	}
}

func (m *Manager) handleFrame(frame []byte, binary bool) {
	metrics.FramesTotal.Inc()

	var (
		batch memorystore.Batch
		err   error
	)
	if binary {
		err = stream.NewDecodeError(frame, stream.ErrBinaryFrame)
	} else {
		batch, err = m.decode(frame)
	}
	if err != nil {
		metrics.DecodeErrors.Inc()
		m.lastErr = err.Error()
		m.publish()
		m.log.Warn("failed to decode frame", zap.Error(err))
		return
	}

	m.store.Apply(batch)
	metrics.RecordsApplied.Add(float64(len(batch)))
	metrics.Symbols.Set(float64(m.store.Len()))

	if m.listener != nil {
		m.notify(func() { m.listener.OnBatch(batch) })
	}
}

func (m *Manager) scheduleReconnect() {
	delay := clampDelay(m.backoff.Next())

	m.timerSeq++
	seq := m.timerSeq
	t := m.clock.AfterFunc(delay, func() {
		m.post(ReconnectTimerFired{Timer: seq})
	})
	m.timer.replace(&reconnectTimer{seq: seq, delay: delay, timer: t})

	metrics.ReconnectDelay.Observe(delay.Seconds())
	m.log.Info("reconnect scheduled", zap.Duration("delay", delay))
}

func (m *Manager) setState(s State) {
	m.state = s
	m.since = m.clock.Now()
	st := m.publish()
	metrics.ConnectionState.Set(float64(s))

	if m.listener != nil {
		m.notify(func() { m.listener.OnStateChange(st) })
	}
}

// notify queues a listener callback. Callbacks run in queue order on a single
// delivery goroutine that exits when the queue is empty.
func (m *Manager) notify(f func()) {
	m.nmu.Lock()
	m.notes = append(m.notes, f)
	if m.delivering {
		m.nmu.Unlock()
		return
	}
	m.delivering = true
	m.nmu.Unlock()

	go m.deliver()
}

func (m *Manager) deliver() {
	m.nmu.Lock()
	for len(m.notes) > 0 {
		f := m.notes[0]
		m.notes[0] = nil
		m.notes = m.notes[1:]
		m.nmu.Unlock()

		f()

		m.nmu.Lock()
	}
	m.notes = nil
	m.delivering = false
	m.nmu.Unlock()
}

func (m *Manager) publish() Status {
	st := Status{
		State:     m.state,
		LastError: m.lastErr,
		Symbols:   m.store.Len(),
		Since:     m.since,
	}
	if cur, ok := m.attempt.get(); ok {
		st.Attempt = cur.id
	}
	m.status.Store(&st)
	return st
}
