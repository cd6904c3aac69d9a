// Package store persists alias registries: a JSON mapping file as the
// primary format, CSV for interchange, and an optional Postgres backend.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/registry"
)

const mappingVersion = "1.0"

// Mapping is the on-disk JSON document holding a registry.
type Mapping struct {
	Version  string            `json:"version"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Entities []registry.Record `json:"entities"`
}

// FileStore reads and writes one mapping file.
type FileStore struct {
	path    string
	created time.Time
	logger  *zap.Logger
}

// NewFileStore creates a file store for the given path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the mapping file path.
func (fs *FileStore) Path() string { return fs.path }

// Load reads the mapping file into a fresh registry. A missing file is not
// an error; it yields an empty registry, matching first-run behavior.
func (fs *FileStore) Load() (*registry.Registry, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			fs.logger.Info("Mapping file not found, starting with empty registry",
				zap.String("path", fs.path))
			fs.created = time.Now()
			return registry.New(fs.logger), nil
		}
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file %s: %w", fs.path, err)
	}
	if m.Version != "" && m.Version != mappingVersion {
		return nil, fmt.Errorf("unsupported mapping version %q in %s", m.Version, fs.path)
	}

	reg, err := registry.NewFromRecords(m.Entities, fs.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping file %s: %w", fs.path, err)
	}

	fs.created = m.Created
	if fs.created.IsZero() {
		fs.created = time.Now()
	}

	fs.logger.Info("Mapping file loaded",
		zap.String("path", fs.path),
		zap.Int("entities", reg.Len()))

	return reg, nil
}

// Save writes the registry back to the mapping file. The write goes through
// a temp file and rename so readers never observe a partial mapping.
func (fs *FileStore) Save(reg *registry.Registry) error {
	if fs.created.IsZero() {
		fs.created = time.Now()
	}

	m := Mapping{
		Version:  mappingVersion,
		Created:  fs.created,
		Updated:  time.Now(),
		Entities: reg.Export(),
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create mapping directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close mapping file: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace mapping file: %w", err)
	}

	fs.logger.Info("Mapping file saved",
		zap.String("path", fs.path),
		zap.Int("entities", len(m.Entities)))

	return nil
}
