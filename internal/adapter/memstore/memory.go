package memstore

import (
	"sync"

	"pyrock/internal/domain"
)

// IndexStore keeps the symbol index in memory. It satisfies port.IndexStore.
type IndexStore struct {
	mu  sync.RWMutex
	idx domain.SymbolIndex
}

func NewIndexStore() *IndexStore {
	return &IndexStore{}
}

// Save replaces the stored index with a copy of idx.
func (s *IndexStore) Save(idx domain.SymbolIndex) error {
	cp := domain.NewSymbolIndex()
	idx.Each(func(p domain.ImportEntry) { cp.Record(p) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx = cp
	return nil
}

func (s *IndexStore) Load() (domain.SymbolIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, domain.ErrNoIndex
	}
	return s.idx, nil
}

func (s *IndexStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx != nil
}
