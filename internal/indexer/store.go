package indexer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopware/php-infer/internal/php"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

const (
	kindClass    = "class"
	kindFunction = "function"
)

// DefinitionStore persists extracted class and function definitions in a
// SQLite database, one msgpack encoded record per definition, grouped by
// the file that declares it.
type DefinitionStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewDefinitionStore opens or creates the store at dbPath.
func NewDefinitionStore(dbPath string) (*DefinitionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	// _txlock=immediate takes the write lock on BEGIN and avoids SQLITE_BUSY on upgrade
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA auto_vacuum=INCREMENTAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			name TEXT NOT NULL COLLATE NOCASE,
			file_path TEXT NOT NULL,
			value BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(kind, name);
		CREATE INDEX IF NOT EXISTS idx_definitions_path ON definitions(file_path);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &DefinitionStore{db: db, dbPath: dbPath}, nil
}

// SaveFile replaces everything stored for defs.Path with the given definitions.
func (s *DefinitionStore) SaveFile(defs php.FileDefinitions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM definitions WHERE file_path = ?", defs.Path); err != nil {
		return fmt.Errorf("failed to delete definitions of %s: %w", defs.Path, err)
	}

	stmt, err := tx.Prepare("INSERT INTO definitions (kind, name, file_path, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, class := range defs.Classes {
		data, err := msgpack.Marshal(php.EncodeClass(class))
		if err != nil {
			return fmt.Errorf("failed to marshal class %s: %w", class.Name, err)
		}
		if _, err := stmt.Exec(kindClass, class.Name, defs.Path, data); err != nil {
			return fmt.Errorf("failed to save class %s: %w", class.Name, err)
		}
	}

	for _, fn := range defs.Functions {
		data, err := msgpack.Marshal(php.EncodeFunction(fn))
		if err != nil {
			return fmt.Errorf("failed to marshal function %s: %w", fn.Name, err)
		}
		if _, err := stmt.Exec(kindFunction, php.NormalizeClassName(fn.Name), defs.Path, data); err != nil {
			return fmt.Errorf("failed to save function %s: %w", fn.Name, err)
		}
	}

	return tx.Commit()
}

// Class returns the most recently stored definition of the class, nil when
// the class is not stored.
func (s *DefinitionStore) Class(name string) (*php.ClassDefinition, error) {
	data, err := s.latest(kindClass, php.NormalizeClassName(name))
	if data == nil || err != nil {
		return nil, err
	}

	var record php.ClassRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class %s: %w", name, err)
	}
	return php.DecodeClass(record), nil
}

// Function returns the most recently stored definition of the function.
func (s *DefinitionStore) Function(name string) (*php.FunctionLikeDefinition, error) {
	data, err := s.latest(kindFunction, php.NormalizeClassName(name))
	if data == nil || err != nil {
		return nil, err
	}

	var record php.FunctionRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal function %s: %w", name, err)
	}
	return php.DecodeFunction(record), nil
}

func (s *DefinitionStore) latest(kind, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(
		"SELECT value FROM definitions WHERE kind = ? AND name = ? ORDER BY id DESC LIMIT 1",
		kind, name,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s %s: %w", kind, name, err)
	}
	return data, nil
}

// NamesByPath returns the class and function names stored for a file.
func (s *DefinitionStore) NamesByPath(filePath string) (classes, functions []string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT kind, name FROM definitions WHERE file_path = ? ORDER BY id", filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if kind == kindClass {
			classes = append(classes, name)
		} else {
			functions = append(functions, name)
		}
	}

	return classes, functions, rows.Err()
}

// LoadInto adds every stored definition to the index and returns how many
// definitions were loaded.
func (s *DefinitionStore) LoadInto(index *php.Index) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT kind, value FROM definitions ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var kind string
		var data []byte
		if err := rows.Scan(&kind, &data); err != nil {
			return count, fmt.Errorf("failed to scan row: %w", err)
		}

		switch kind {
		case kindClass:
			var record php.ClassRecord
			if err := msgpack.Unmarshal(data, &record); err != nil {
				return count, fmt.Errorf("failed to unmarshal class: %w", err)
			}
			index.AddClass(php.DecodeClass(record))
		case kindFunction:
			var record php.FunctionRecord
			if err := msgpack.Unmarshal(data, &record); err != nil {
				return count, fmt.Errorf("failed to unmarshal function: %w", err)
			}
			index.AddFunction(php.DecodeFunction(record))
		}
		count++
	}

	return count, rows.Err()
}

// BatchDeleteByFilePaths deletes all definitions of the given files in a single transaction.
func (s *DefinitionStore) BatchDeleteByFilePaths(filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, filePath := range filePaths {
		if _, err := tx.Exec("DELETE FROM definitions WHERE file_path = ?", filePath); err != nil {
			return fmt.Errorf("failed to delete definitions of %s: %w", filePath, err)
		}
	}

	return tx.Commit()
}

func (s *DefinitionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM definitions"); err != nil {
		return err
	}

	_, err := s.db.Exec("PRAGMA incremental_vacuum")
	return err
}

// Close checkpoints the WAL and closes the database.
func (s *DefinitionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.db.Exec("PRAGMA optimize")
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

	return s.db.Close()
}
