package connmgr

import (
	"context"
	"time"

	"tickboard/pkg/wsfeed"
)

type releaser interface {
	release()
}

// owned holds at most one resource. replace releases the previous one before
// installing the new one; release is a no-op when nothing is held.
type owned[T releaser] struct {
	v  T
	ok bool
}

func (o *owned[T]) get() (T, bool) {
	return o.v, o.ok
}

func (o *owned[T]) replace(v T) {
	o.release()
	o.v, o.ok = v, true
}

func (o *owned[T]) release() bool {
	if !o.ok {
		return false
	}
	v := o.v
	var zero T
	o.v, o.ok = zero, false
	v.release()
	return true
}

// attempt is one connection attempt: the pending dial and, once opened, the
// live connection.
type attempt struct {
	seq    uint64
	id     string
	cancel context.CancelFunc
	conn   wsfeed.Conn
}

func (a *attempt) release() {
	a.cancel()
	if a.conn != nil {
		_ = a.conn.Close()
	}
}

type reconnectTimer struct {
	seq   uint64
	delay time.Duration
	timer Timer
}

func (r *reconnectTimer) release() {
	r.timer.Stop()
}
