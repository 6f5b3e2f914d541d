package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/churchdesk/internal/forms"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps forms and responses in SQLite. Responses are only ever
// inserted, never rewritten.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database in dataDir and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, DatabaseFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection avoids "database is locked" between our own writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: dsn}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *SQLiteStore) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) fail(op string, err error) error {
	return &forms.StorageError{Op: op, Path: s.path, Err: err}
}

// --- Forms ---

func (s *SQLiteStore) ListSchemas(ctx context.Context) ([]forms.Schema, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM forms ORDER BY seq ASC")
	if err != nil {
		return nil, s.fail("list forms", err)
	}
	defer rows.Close()

	var out []forms.Schema
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, s.fail("list forms", err)
		}
		var sc forms.Schema
		if err := json.Unmarshal([]byte(doc), &sc); err != nil {
			return nil, s.fail("decode form", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list forms", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetSchema(ctx context.Context, id string) (forms.Schema, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM forms WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return forms.Schema{}, forms.ErrNotFound
	}
	if err != nil {
		return forms.Schema{}, s.fail("get form", err)
	}
	var sc forms.Schema
	if err := json.Unmarshal([]byte(doc), &sc); err != nil {
		return forms.Schema{}, s.fail("decode form", err)
	}
	return sc, nil
}

func (s *SQLiteStore) AppendSchema(ctx context.Context, sc forms.Schema) error {
	doc, err := json.Marshal(sc)
	if err != nil {
		return s.fail("encode form", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT INTO forms (id, doc) VALUES (?, ?)", sc.ID, string(doc)); err != nil {
		return s.fail("insert form", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveSchema(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM forms WHERE id = ?", id)
	if err != nil {
		return s.fail("delete form", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete form", err)
	}
	if n == 0 {
		return forms.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetActive(ctx context.Context, id string, active bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("update form", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, "SELECT doc FROM forms WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return forms.ErrNotFound
	}
	if err != nil {
		return s.fail("update form", err)
	}
	var sc forms.Schema
	if err := json.Unmarshal([]byte(doc), &sc); err != nil {
		return s.fail("decode form", err)
	}
	sc.Active = active
	updated, err := json.Marshal(sc)
	if err != nil {
		return s.fail("encode form", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE forms SET doc = ? WHERE id = ?", string(updated), id); err != nil {
		return s.fail("update form", err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("update form", err)
	}
	return nil
}

// --- Responses ---

func (s *SQLiteStore) AppendResponse(ctx context.Context, r forms.Response) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return s.fail("encode response", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO responses (id, form_id, submitted_at, doc) VALUES (?, ?, ?, ?)",
		r.ID, r.FormID, r.SubmittedAt.UTC().Format(time.RFC3339), string(doc),
	)
	if err != nil {
		return s.fail("insert response", err)
	}
	return nil
}

// Responses streams rows as the caller ranges. The store has a single
// connection, so the loop body must not call back into the store.
func (s *SQLiteStore) Responses(ctx context.Context, formID string) iter.Seq2[forms.Response, error] {
	return func(yield func(forms.Response, error) bool) {
		rows, err := s.db.QueryContext(ctx, "SELECT doc FROM responses WHERE form_id = ? ORDER BY seq ASC", formID)
		if err != nil {
			yield(forms.Response{}, s.fail("list responses", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				yield(forms.Response{}, s.fail("list responses", err))
				return
			}
			var r forms.Response
			if err := json.Unmarshal([]byte(doc), &r); err != nil {
				yield(forms.Response{}, s.fail("decode response", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(forms.Response{}, s.fail("list responses", err))
		}
	}
}

func (s *SQLiteStore) CountByForm(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT form_id, COUNT(*) FROM responses GROUP BY form_id")
	if err != nil {
		return nil, s.fail("count responses", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, s.fail("count responses", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("count responses", err)
	}
	return counts, nil
}
