package connmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tickboard/internal/feed/memorystore"
	"tickboard/pkg/wsfeed"
)

var errConnClosed = errors.New("use of closed connection")

// fakeConn delivers frames pushed by the test: text on frames, binary on
// binary.
type fakeConn struct {
	frames chan []byte
	binary chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		binary: make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errConnClosed
	default:
	}
	select {
	case f := <-c.frames:
		return wsfeed.TextMessage, f, nil
	case f := <-c.binary:
		return wsfeed.BinaryMessage, f, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type dialResult struct {
	conn wsfeed.Conn
	err  error
}

type dialCall struct {
	ctx    context.Context
	result chan dialResult
}

func (c *dialCall) succeed(conn wsfeed.Conn) { c.result <- dialResult{conn: conn} }
func (c *dialCall) fail(err error)           { c.result <- dialResult{err: err} }

// fakeDialer hands every dial to the test, which decides its outcome.
type fakeDialer struct {
	calls chan *dialCall
	count atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{calls: make(chan *dialCall, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (wsfeed.Conn, error) {
	d.count.Add(1)
	call := &dialCall{ctx: ctx, result: make(chan dialResult, 1)}
	d.calls <- call
	select {
	case r := <-call.result:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *dialCall {
	t.Helper()
	select {
	case call := <-d.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial")
		return nil
	}
}

func (d *fakeDialer) assertNoDial(t *testing.T) {
	t.Helper()
	select {
	case <-d.calls:
		t.Fatal("unexpected dial")
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
	stops   int
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stops++
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) isStopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

// fakeClock never fires on its own.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// active returns timers that are neither stopped nor fired.
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

// fire runs the timer's callback unless it was stopped.
func (c *fakeClock) fire(t *fakeTimer) {
	c.mu.Lock()
	if t.stopped || t.fired {
		c.mu.Unlock()
		return
	}
	t.fired = true
	c.mu.Unlock()
	t.f()
}

// recordingListener keeps every callback in order.
type recordingListener struct {
	mu      sync.Mutex
	states  []State
	batches []memorystore.Batch
}

func (l *recordingListener) OnStateChange(st Status) {
	l.mu.Lock()
	l.states = append(l.states, st.State)
	l.mu.Unlock()
}

func (l *recordingListener) OnBatch(b memorystore.Batch) {
	l.mu.Lock()
	l.batches = append(l.batches, b)
	l.mu.Unlock()
}

func (l *recordingListener) stateLog() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func (l *recordingListener) batchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batches)
}

// fixedIntn makes RandomBackoff deterministic.
func fixedIntn(k int) func(int) int {
	return func(int) int { return k }
}
