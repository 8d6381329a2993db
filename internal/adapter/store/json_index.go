package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"pyrock/internal/domain"
)

// JSONIndexStore persists the symbol index as a JSON document of nested
// string maps.
type JSONIndexStore struct {
	path string
	log  zerolog.Logger
}

func NewJSONIndexStore(path string, log zerolog.Logger) *JSONIndexStore {
	return &JSONIndexStore{path: path, log: log}
}

func (s *JSONIndexStore) Path() string {
	return s.path
}

// Save replaces the index file. The document is written to a temp file in
// the same directory and renamed over the target.
func (s *JSONIndexStore) Save(idx domain.SymbolIndex) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pyrock-index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads the index. A missing or unreadable file yields domain.ErrNoIndex.
func (s *JSONIndexStore) Load() (domain.SymbolIndex, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("read index")
		}
		return nil, domain.ErrNoIndex
	}
	idx := domain.NewSymbolIndex()
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("index file is corrupt")
		return nil, domain.ErrNoIndex
	}
	return idx, nil
}

func (s *JSONIndexStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
