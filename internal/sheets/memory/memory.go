package memory

import (
	"context"
	"slices"
	"sync"

	"dindin/internal/core"
	"dindin/internal/sheets"
)

var _ sheets.Exporter = (*Store)(nil)

// Store keeps exported tabs in memory, keyed by tab name.
type Store struct {
	mu      sync.Mutex
	tabs    map[string][][]string
	exports int
}

func New() *Store {
	return &Store{tabs: make(map[string][][]string)}
}

// ExportMonth replaces the tab of month p.
func (s *Store) ExportMonth(_ context.Context, userID string, p core.Period, txs []core.Transaction) error {
	rows := sheets.Rows(p, txs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[sheets.TabName(userID, p)] = rows
	s.exports++
	return nil
}

// Tab returns a copy of the rows of a tab.
func (s *Store) Tab(name string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[name]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out, true
}

// Exports counts ExportMonth calls.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
