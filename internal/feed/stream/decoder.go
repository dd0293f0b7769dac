package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"tickboard/internal/feed/memorystore"
)

const excerptLen = 64

var (
	ErrNotObject        = errors.New("top level is not a JSON object")
	ErrEmptySymbol      = errors.New("empty symbol key")
	ErrPayloadNotObject = errors.New("ticker payload is not an object or null")
	ErrTrailingData     = errors.New("unexpected data after top-level object")
	ErrInvalidUTF8      = errors.New("frame is not valid UTF-8")
	ErrBinaryFrame      = errors.New("binary frame, expected text")
)

// DecodeError reports a frame that could not be turned into a batch.
// It never affects the connection.
type DecodeError struct {
	Excerpt string // leading part of the offending frame
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", e.Excerpt, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err with an excerpt of frame.
func NewDecodeError(frame []byte, err error) *DecodeError {
	excerpt := frame
	if len(excerpt) > excerptLen {
		excerpt = excerpt[:excerptLen]
	}
	return &DecodeError{Excerpt: string(excerpt), Err: err}
}

// Decode parses one frame into a batch. Pairs keep the order in which symbols
// first appear; a symbol repeated within the frame keeps its last payload.
// Any error rejects the whole frame.
func Decode(frame []byte) (memorystore.Batch, error) {
	// encoding/json would silently map bad bytes in keys to U+FFFD
	if !utf8.Valid(frame) {
		return nil, NewDecodeError(frame, ErrInvalidUTF8)
	}

	dec := json.NewDecoder(bytes.NewReader(frame))

	tok, err := dec.Token()
	if err != nil {
		return nil, NewDecodeError(frame, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, NewDecodeError(frame, ErrNotObject)
	}

	var batch memorystore.Batch
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, NewDecodeError(frame, err)
		}
		symbol, ok := tok.(string)
		if !ok {
			return nil, NewDecodeError(frame, fmt.Errorf("unexpected token %v", tok))
		}
		if symbol == "" {
			return nil, NewDecodeError(frame, ErrEmptySymbol)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, NewDecodeError(frame, err)
		}
		rec, err := decodeRecord(symbol, raw)
		if err != nil {
			return nil, NewDecodeError(frame, fmt.Errorf("symbol %q: %w", symbol, err))
		}

		if i, seen := index[symbol]; seen {
			batch[i].Record = rec
			continue
		}
		index[symbol] = len(batch)
		batch = append(batch, memorystore.Pair{Symbol: symbol, Record: rec})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, NewDecodeError(frame, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, NewDecodeError(frame, ErrTrailingData)
	}

	return batch, nil
}

func decodeRecord(symbol string, raw json.RawMessage) (memorystore.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return memorystore.Record{Symbol: symbol}, nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return memorystore.Record{}, ErrPayloadNotObject
	}

	var payload TickerPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return memorystore.Record{}, err
	}
	return payload.record(symbol), nil
}
