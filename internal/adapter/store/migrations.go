package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"pyrock/config"
)

// CurrentSchemaVersion is the current registry schema version.
// Increment this when making breaking changes to the index format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keySettingsHash  = []byte("settings_hash")
)

// SchemaInfo stores schema version and the hash of the settings the current
// index was built with.
type SchemaInfo struct {
	Version      int    `json:"version"`
	SettingsHash string `json:"settings_hash"`
}

// GetSchemaInfo retrieves the current schema info from the registry.
func (r *Registry) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(keySchemaVersion); v != nil {
			if err := json.Unmarshal(v, &info.Version); err != nil {
				info.Version = 0
			}
		}
		if v := b.Get(keySettingsHash); v != nil {
			info.SettingsHash = string(v)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the registry.
func (r *Registry) SetSchemaInfo(info *SchemaInfo) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keySettingsHash, []byte(info.SettingsHash))
	})
}

// ComputeSettingsHash hashes the settings that change index contents.
// A different hash means the index should be rebuilt.
func ComputeSettingsHash(h config.Serialized) string {
	relevant := struct {
		Depth       int      `json:"depth"`
		Mode        string   `json:"mode"`
		Interpreter string   `json:"interpreter"`
		SearchPaths []string `json:"search_paths"`
		Denylist    []string `json:"denylist"`
	}{
		Depth:       h.ImportScanDepth,
		Mode:        h.IntrospectionMode,
		Interpreter: h.PythonInterpreterPath,
		SearchPaths: h.SearchPaths,
		Denylist:    h.ModuleDenylist,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// RebuildResult describes whether an index rebuild is needed.
type RebuildResult struct {
	NeedsRebuild bool
	Reason       string
}

// CheckRebuild compares the stored settings hash with hash.
func (r *Registry) CheckRebuild(hash string, indexExists bool) (*RebuildResult, error) {
	if !indexExists {
		return &RebuildResult{NeedsRebuild: true, Reason: "no index present"}, nil
	}
	info, err := r.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	switch {
	case info.Version > CurrentSchemaVersion:
		return &RebuildResult{NeedsRebuild: true, Reason: fmt.Sprintf("index created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)}, nil
	case info.SettingsHash == "":
		return &RebuildResult{NeedsRebuild: true, Reason: "index built without recorded settings"}, nil
	case info.SettingsHash != hash:
		return &RebuildResult{NeedsRebuild: true, Reason: "index settings changed"}, nil
	}
	return &RebuildResult{}, nil
}

// MarkBuilt records that an index was built with hash.
func (r *Registry) MarkBuilt(hash string) error {
	return r.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, SettingsHash: hash})
}
