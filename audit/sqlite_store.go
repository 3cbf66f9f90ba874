package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists each project as one row holding its JSON
// document. Same external document shape as the file store, so a
// database can be dumped back to a projects file and vice versa.
type SQLiteStore struct {
	db    *sql.DB
	table *ReferenceTable
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, table *ReferenceTable) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if table == nil {
		table = DefaultReferenceTable()
	}

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS projects (
		name TEXT PRIMARY KEY,
		doc  TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("migrating sqlite store: %w", err)
	}
	return nil
}

// Load reads every project row and decodes its document.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, doc FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := make(map[string]*Project)
	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("sqlite store load: %w", err)
		}

		// Each row's doc is a single-project document keyed by name.
		decoded, err := DecodeProjects([]byte(doc), s.table)
		if err != nil {
			return nil, fmt.Errorf("sqlite store load %q: %w", name, err)
		}
		if pr, ok := decoded[name]; ok {
			projects[name] = pr
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store load: %w", err)
	}
	return projects, nil
}

// Save replaces all project rows inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, projects map[string]*Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects`); err != nil {
		return fmt.Errorf("sqlite store save: %w", err)
	}

	for name, pr := range projects {
		doc, err := encodeProject(pr)
		if err != nil {
			return fmt.Errorf("sqlite store save %q: %w", name, err)
		}
		payload, err := json.Marshal(map[string]*projectDocument{name: doc})
		if err != nil {
			return fmt.Errorf("sqlite store save %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (name, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			name, string(payload)); err != nil {
			return fmt.Errorf("sqlite store save %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store save: %w", err)
	}
	return nil
}
