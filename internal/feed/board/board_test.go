package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tickboard/config"
	"tickboard/internal/feed/connmgr"
	"tickboard/pkg/storage/postgres"
	"tickboard/pkg/wsfeed"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var frames = []string{
	`{"BTCUSDT":{"timestamp":1700000000000,"open":"100","high":"110","low":"90","close":"105","volume":"10"}}`,
	`{"ETHUSDT":{"timestamp":1700000000000,"open":"50","high":"55","low":"48","close":"52","volume":"20"}}`,
	`{"BTCUSDT":{"timestamp":1700000060000,"open":"106","high":"108","low":"104","close":"107","volume":"5"}}`,
}

func newFeedServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection until the client leaves
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newFloodServer streams a fresh symbol per frame until the client goes away.
func newFloodServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; ; i++ {
			f := fmt.Sprintf(`{"SYM%06dUSDT":{"open":"1","high":"2","low":"1","close":"2","volume":"3"}}`, i)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type fakeArchive struct {
	mu      sync.Mutex
	records []*postgres.TickerRecord
	prunes  int
}

func (a *fakeArchive) InsertTickers(_ context.Context, records []*postgres.TickerRecord) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, records...)
	return int64(len(records)), nil
}

func (a *fakeArchive) DeleteTickersBefore(context.Context, time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prunes++
	return 0, nil
}

func (a *fakeArchive) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records), a.prunes
}

func testConfig(url string) *config.Config {
	return &config.Config{
		Env: "dev",
		Feed: config.FeedConfig{
			URL:              url,
			HandshakeTimeout: 2 * time.Second,
			StatusInterval:   10 * time.Millisecond,
		},
		Reconnect: config.ReconnectConfig{
			Policy:             config.PolicyRandom,
			MaxExponent:        4,
			RetryOnOpenFailure: true,
		},
	}
}

// go test -v --run TestBoard_EndToEnd
func TestBoard_EndToEnd(t *testing.T) {
	cfg := testConfig(newFeedServer(t))
	cfg.Archive = config.ArchiveConfig{Enabled: true, BufferSize: 16, WriteTimeout: time.Second, Retention: 24 * time.Hour}

	history := &fakeArchive{}
	b, err := New(cfg, zap.NewNop(), WithArchiveStore(history))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		row, ok := b.Row("BTCUSDT")
		return ok && row.Open == 106
	}, 5*time.Second, 10*time.Millisecond)

	st := b.Status()
	assert.Equal(t, connmgr.Open, st.State)
	assert.Equal(t, 2, st.Symbols)

	rows := b.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "BTCUSDT", rows[0].Symbol)
	assert.Equal(t, 108.0, rows[0].High)
	assert.Equal(t, "ETHUSDT", rows[1].Symbol)
	assert.Equal(t, 52.0, rows[1].Close)
	require.NotNil(t, rows[1].Timestamp)
	assert.True(t, rows[1].Timestamp.Equal(time.UnixMilli(1700000000000)))

	_, ok := b.Row("SOLUSDT")
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		n, prunes := history.counts()
		return n == 3 && prunes == 1
	}, 5*time.Second, 10*time.Millisecond)

	// a manual reconnect keeps the table and replays into it
	b.Reconnect()
	require.Eventually(t, func() bool {
		n, _ := history.counts()
		return n >= 6 && b.Status().State == connmgr.Open
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, b.Rows(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, connmgr.Closed, b.Status().State)
	assert.Empty(t, b.Rows())

	// Close after Run is a no-op
	b.Close()
}

// go test -v --run TestBoard_CloseDuringStream
func TestBoard_CloseDuringStream(t *testing.T) {
	cfg := testConfig(newFloodServer(t))
	cfg.Archive = config.ArchiveConfig{Enabled: true, BufferSize: 4, WriteTimeout: time.Second}

	b, err := New(cfg, zap.NewNop(), WithArchiveStore(&fakeArchive{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(b.Rows()) > 10 }, 5*time.Second, 5*time.Millisecond)

	// frames are still arriving while Close tears the board down
	b.Close()

	assert.Equal(t, connmgr.Closed, b.Status().State)
	assert.Empty(t, b.Rows())
	assert.Never(t, func() bool { return len(b.Rows()) > 0 }, 200*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, connmgr.Closed, b.Status().State)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

type failingDialer struct{}

func (failingDialer) Dial(context.Context, string) (wsfeed.Conn, error) {
	return nil, errors.New("connection refused")
}

func TestBoard_OpenFailureTerminal(t *testing.T) {
	cfg := testConfig("ws://feed.invalid/ws")
	cfg.Reconnect.RetryOnOpenFailure = false

	b, err := New(cfg, zap.NewNop(), WithDialer(failingDialer{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return b.Status().State == connmgr.Failed }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, b.Status().LastError, "connection refused")

	cancel()
	require.NoError(t, <-done)
}

func TestNew_RejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig("ws://feed.invalid/ws")
	cfg.Reconnect.Policy = "linear"

	_, err := New(cfg, zap.NewNop(), WithDialer(failingDialer{}))
	require.Error(t, err)
}
