package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kalambet/churchdesk/internal/forms"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// File names inside the data directory.
const (
	SchemasFile   = "formularios.json"
	ResponsesFile = "respostas_formularios.json"
	DatabaseFile  = "churchdesk.db"
)

// SchemaStore is the ordered collection of published forms.
type SchemaStore interface {
	ListSchemas(ctx context.Context) ([]forms.Schema, error)
	GetSchema(ctx context.Context, id string) (forms.Schema, error)
	AppendSchema(ctx context.Context, s forms.Schema) error
	RemoveSchema(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ResponseStore holds submitted responses.
type ResponseStore interface {
	AppendResponse(ctx context.Context, r forms.Response) error
	Responses(ctx context.Context, formID string) iter.Seq2[forms.Response, error]
	CountByForm(ctx context.Context) (map[string]int, error)
}

// Store bundles the schema and response stores of one data directory.
type Store struct {
	SchemaStore
	ResponseStore

	closer io.Closer
}

// Open opens the stores in dataDir using the named backend. Pass ":memory:"
// as dataDir with the sqlite backend for an in-memory database (tests).
func Open(dataDir, backend string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case BackendJSON, "":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return &Store{
			SchemaStore:   NewJSONSchemaStore(filepath.Join(dataDir, SchemasFile), logger),
			ResponseStore: NewJSONResponseStore(filepath.Join(dataDir, ResponsesFile), logger),
		}, nil
	case BackendSQLite:
		db, err := OpenSQLite(dataDir)
		if err != nil {
			return nil, err
		}
		return &Store{SchemaStore: db, ResponseStore: db, closer: db}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q (want %q or %q)", backend, BackendJSON, BackendSQLite)
}

// Close releases the backend; a no-op for JSON files.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
