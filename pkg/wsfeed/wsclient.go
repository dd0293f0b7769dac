package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CloseAbnormal is the close code reported when the connection dropped
// without a close frame.
const CloseAbnormal = websocket.CloseAbnormalClosure

// Data message types, as in RFC 6455.
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

// Conn is one open streaming connection. ReadMessage blocks until the next
// data message arrives and reports its type (TextMessage or BinaryMessage);
// it returns *CloseError when the peer closed the connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens connections to a feed endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError carries the close code and reason sent by the peer.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

// WSDialer dials feed endpoints with gorilla/websocket.
type WSDialer struct {
	dialer      *websocket.Dialer
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewWSDialer creates a dialer. readTimeout of 0 disables read deadlines.
func NewWSDialer(handshakeTimeout, readTimeout time.Duration, logger *zap.Logger) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		readTimeout: readTimeout,
		logger:      logger.Named("wsfeed"),
	}
}

// Dial establishes the WebSocket connection. It does not start reading.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	d.logger.Debug("WebSocket connected", zap.String("url", url))

	return &wsConn{conn: conn, readTimeout: d.readTimeout}, nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, nil, err
		}
	}

	mt, msg, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return 0, nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return 0, nil, err
	}
	return mt, msg, nil
}

// Close drops the underlying connection. Safe to call more than once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
