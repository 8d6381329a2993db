package port

import "pyrock/internal/domain"

// IndexStore persists the symbol index.
type IndexStore interface {
	// Save replaces any stored index with idx.
	Save(idx domain.SymbolIndex) error

	// Load returns the stored index or domain.ErrNoIndex.
	Load() (domain.SymbolIndex, error)

	Exists() bool
}

// IndexReader returns the current index for lookups, reloading it when the
// persisted copy changed.
type IndexReader interface {
	Get() (domain.SymbolIndex, error)
	Invalidate()
}
