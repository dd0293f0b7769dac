package connmgr

import "time"

// State is the connection lifecycle state. The Manager is its only writer.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Error
	Closed
	// Failed is terminal until the next Connect. It is only reachable when
	// open failures are configured not to retry.
	Failed
)

var stateNames = [...]string{
	Idle:       "idle",
	Connecting: "connecting",
	Open:       "open",
	Error:      "error",
	Closed:     "closed",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is what the presentation layer sees.
type Status struct {
	State     State     `json:"state"`
	LastError string    `json:"last_error,omitempty"`
	Symbols   int       `json:"symbols"`
	Attempt   string    `json:"attempt,omitempty"` // id of the current connection attempt
	Since     time.Time `json:"since"`             // when State was entered
}
