// Package session owns the process-wide credential state that gates every
// generation call, plus the durable store the key is restored from on startup.
package session

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// KeyCredentialName is the durable-store slot the generation API key lives under.
const KeyCredentialName = "generation_api_key"

// CredentialStore persists named opaque credential strings across restarts.
type CredentialStore interface {
	Get(name string) (string, bool)
	Set(name, value string) error
}

// Store is a CredentialStore backed by either a JSON file or postgres, selected
// at construction.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	values   map[string]string

	schemaOnce sync.Once
	schemaErr  error
}

func New(path string) *Store {
	return &Store{path: path, values: make(map[string]string)}
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, values: make(map[string]string)}, nil
}

// NewFromEnv prefers postgres when CREDENTIAL_STORE_PG_DSN is set, falling back
// to the file store at path.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("CREDENTIAL_STORE_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(path)
	}
	return s
}

func (s *Store) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if s.db != nil {
		return s.getDB(name)
	}
	return s.getFile(name)
}

func (s *Store) Set(name, value string) error {
	if s == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if s.db != nil {
		return s.setDB(name, value)
	}
	return s.setFile(name, value)
}

// file backend ---------------------------------------------------------------------

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows map[string]string
		if err := json.Unmarshal(data, &rows); err != nil {
			return
		}
		s.mu.Lock()
		for k, v := range rows {
			s.values[k] = v
		}
		s.mu.Unlock()
	})
}

func (s *Store) getFile(name string) (string, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	v, ok := s.values[name]
	s.mu.RUnlock()
	return v, ok && v != ""
}

func (s *Store) setFile(name, value string) error {
	s.ensureLoadedFile()
	s.mu.Lock()
	s.values[name] = value
	rows := make(map[string]string, len(s.values))
	for k, v := range s.values {
		rows[k] = v
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// postgres backend -----------------------------------------------------------------

func (s *Store) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS credentials (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL DEFAULT ''
);
`)
	})
	return s.schemaErr
}

func (s *Store) getDB(name string) (string, bool) {
	if err := s.ensureSchema(); err != nil {
		return "", false
	}
	var v string
	row := s.db.QueryRow(`SELECT value FROM credentials WHERE name = $1`, name)
	if err := row.Scan(&v); err != nil {
		return "", false
	}
	return v, v != ""
}

func (s *Store) setDB(name, value string) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
INSERT INTO credentials (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, value)
	return err
}
