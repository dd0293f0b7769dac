package memorystore

import (
	"sort"
	"sync"
)

// TickerStore holds the symbol table. Apply is the only mutation path.
type TickerStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewTickerStore() *TickerStore {
	return &TickerStore{
		data: make(map[string]Record),
	}
}

// Apply replaces the whole record of every symbol in the batch. Symbols not in
// the batch are untouched. Readers never observe a partially applied batch.
func (s *TickerStore) Apply(batch Batch) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range batch {
		rec := p.Record.clone()
		rec.Symbol = p.Symbol
		s.data[p.Symbol] = rec
	}
}

func (s *TickerStore) Get(symbol string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[symbol]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Snapshot returns a deep copy of the table.
func (s *TickerStore) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.data))
	for sym, rec := range s.data {
		out[sym] = rec.clone()
	}
	return out
}

// Rows returns display rows ordered by symbol.
func (s *TickerStore) Rows() []Row {
	s.mu.RLock()
	rows := make([]Row, 0, len(s.data))
	for _, rec := range s.data {
		rows = append(rows, rec.Row())
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

// Len returns the number of symbols currently held.
func (s *TickerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Discard drops the whole table. Only teardown calls it.
func (s *TickerStore) Discard() {
	s.mu.Lock()
	s.data = make(map[string]Record)
	s.mu.Unlock()
}
