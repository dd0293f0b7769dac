package connmgr

import "tickboard/pkg/wsfeed"

// Event is an input to the connection state machine. Transport events carry
// the sequence number of the attempt that produced them and timer events the
// sequence number of their timer; anything from a released attempt or timer
// is stale and ignored.
type Event interface {
	event()
}

type connectRequested struct{}

// UserClose is an explicit Close call. done, when set, is closed once the
// close has been applied.
type UserClose struct {
	done chan struct{}
}

// Opened reports a successful dial.
type Opened struct {
	Attempt uint64
	Conn    wsfeed.Conn
}

// FrameReceived carries one inbound data message.
type FrameReceived struct {
	Attempt uint64
	Binary  bool
	Frame   []byte
}

// TransportError is a dial failure (while Connecting) or a read failure
// (while Open).
type TransportError struct {
	Attempt uint64
	Err     error
}

// TransportClosed reports the connection going away.
type TransportClosed struct {
	Attempt uint64
	Code    int
	Reason  string
}

// ReconnectTimerFired is posted when a scheduled reconnect is due.
type ReconnectTimerFired struct {
	Timer uint64
}

func (connectRequested) event()    {}
func (UserClose) event()           {}
func (Opened) event()              {}
func (FrameReceived) event()       {}
func (TransportError) event()      {}
func (TransportClosed) event()     {}
func (ReconnectTimerFired) event() {}
