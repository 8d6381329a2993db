package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Serialized is the settings handoff written before the index worker starts
// and read once by it. The first three keys are the stable contract; the rest
// are omitted when empty.
type Serialized struct {
	ImportScanDepth     int    `json:"IMPORT_SCAN_DEPTH"`
	IndexCacheDirectory string `json:"INDEX_CACHE_DIRECTORY"`
	ImportIndexFileName string `json:"IMPORT_INDEX_FILE_NAME"`

	PythonInterpreterPath string   `json:"PYTHON_INTERPRETER_PATH,omitempty"`
	IntrospectionMode     string   `json:"INTROSPECTION_MODE,omitempty"`
	SearchPaths           []string `json:"SEARCH_PATHS,omitempty"`
	ModuleDenylist        []string `json:"MODULE_DENYLIST,omitempty"`
	MetricsFile           string   `json:"METRICS_FILE,omitempty"`
	LogLevel              string   `json:"LOG_LEVEL,omitempty"`
	RegistryPath          string   `json:"REGISTRY_PATH,omitempty"`
	SettingsHash          string   `json:"SETTINGS_HASH,omitempty"`
}

// Serialize builds the handoff for the current settings.
func (s *Settings) Serialize() Serialized {
	return Serialized{
		ImportScanDepth:       s.ImportScanDepth,
		IndexCacheDirectory:   s.IndexCacheDirectory,
		ImportIndexFileName:   s.ImportIndexFileName,
		PythonInterpreterPath: s.Interpreter(),
		IntrospectionMode:     s.IntrospectionMode,
		SearchPaths:           s.SearchPaths,
		ModuleDenylist:        s.ModuleDenylist,
		MetricsFile:           s.MetricsFile,
		LogLevel:              s.LogLevel,
		RegistryPath:          s.RegistryPath(),
	}
}

// IndexPath returns the index file path named by the handoff.
func (h Serialized) IndexPath() string {
	return filepath.Join(h.IndexCacheDirectory, h.ImportIndexFileName)
}

// WriteSerialized writes the handoff file, replacing any previous one.
func WriteSerialized(path string, h Serialized) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create package directory: %w", err)
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadSerialized reads a handoff file written by WriteSerialized.
func ReadSerialized(path string) (Serialized, error) {
	var h Serialized
	data, err := os.ReadFile(path)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse %s: %w", path, err)
	}
	if h.ImportScanDepth < MinImportScanDepth || h.ImportScanDepth > MaxImportScanDepth {
		return h, &SettingsError{
			Code:    CodeInvalidScanDepth,
			Field:   "IMPORT_SCAN_DEPTH",
			Message: fmt.Sprintf("import scan depth should be in range of %d to %d, got %d", MinImportScanDepth, MaxImportScanDepth, h.ImportScanDepth),
		}
	}
	return h, nil
}
