package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectStore is the pluggable persistence backend. The core never
// assumes which backend it talks to; it only needs to load the whole
// project set and save it back after a mutation.
type ProjectStore interface {
	Load(ctx context.Context) (map[string]*Project, error)
	Save(ctx context.Context, projects map[string]*Project) error
}

// FileStore persists the project document to a local JSON file.
type FileStore struct {
	Path  string
	Table *ReferenceTable
}

// NewFileStore creates a file-backed store. table resolves category
// snapshots for legacy documents; nil uses the built-in table.
func NewFileStore(path string, table *ReferenceTable) *FileStore {
	if table == nil {
		table = DefaultReferenceTable()
	}
	return &FileStore{Path: path, Table: table}
}

// Load reads and decodes the document. A missing file is an empty
// project set, not an error.
func (s *FileStore) Load(ctx context.Context) (map[string]*Project, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Project{}, nil
		}
		return nil, fmt.Errorf("reading projects file: %w", err)
	}

	projects, err := DecodeProjects(data, s.Table)
	if err != nil {
		return nil, fmt.Errorf("projects file %s: %w", s.Path, err)
	}
	return projects, nil
}

// Save encodes and writes the full document.
func (s *FileStore) Save(ctx context.Context, projects map[string]*Project) error {
	data, err := EncodeProjects(projects)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating projects directory: %w", err)
	}

	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing projects file: %w", err)
	}
	return nil
}
