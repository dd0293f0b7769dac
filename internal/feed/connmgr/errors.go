package connmgr

import "fmt"

// TransportOpenError is a failure while establishing the connection.
type TransportOpenError struct {
	URL string
	Err error
}

func (e *TransportOpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.URL, e.Err)
}

func (e *TransportOpenError) Unwrap() error { return e.Err }

// TransportRuntimeError is a failure on an open connection.
type TransportRuntimeError struct {
	Err error
}

func (e *TransportRuntimeError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportRuntimeError) Unwrap() error { return e.Err }
