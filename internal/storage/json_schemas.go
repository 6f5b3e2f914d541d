package storage

import (
	"context"
	"log/slog"
	"slices"

	"github.com/kalambet/churchdesk/internal/forms"
)

// JSONSchemaStore keeps all forms in one JSON array file.
type JSONSchemaStore struct {
	file *jsonFile[forms.Schema]
}

func NewJSONSchemaStore(path string, logger *slog.Logger) *JSONSchemaStore {
	return &JSONSchemaStore{file: newJSONFile[forms.Schema](path, logger)}
}

// ListSchemas never fails: an absent or corrupt file lists as empty. Writes
// to a corrupt file fail instead (see jsonFile.update).
func (s *JSONSchemaStore) ListSchemas(ctx context.Context) ([]forms.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.file.read(), nil
}

func (s *JSONSchemaStore) GetSchema(ctx context.Context, id string) (forms.Schema, error) {
	schemas, err := s.ListSchemas(ctx)
	if err != nil {
		return forms.Schema{}, err
	}
	for _, sc := range schemas {
		if sc.ID == id {
			return sc, nil
		}
	}
	return forms.Schema{}, forms.ErrNotFound
}

func (s *JSONSchemaStore) AppendSchema(ctx context.Context, sc forms.Schema) error {
	return s.file.update(ctx, func(schemas []forms.Schema) ([]forms.Schema, error) {
		return append(schemas, sc), nil
	})
}

// RemoveSchema drops the form; its responses stay in the response file.
func (s *JSONSchemaStore) RemoveSchema(ctx context.Context, id string) error {
	return s.file.update(ctx, func(schemas []forms.Schema) ([]forms.Schema, error) {
		kept := slices.DeleteFunc(schemas, func(sc forms.Schema) bool { return sc.ID == id })
		if len(kept) == len(schemas) {
			return nil, forms.ErrNotFound
		}
		return kept, nil
	})
}

func (s *JSONSchemaStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.file.update(ctx, func(schemas []forms.Schema) ([]forms.Schema, error) {
		for i := range schemas {
			if schemas[i].ID == id {
				schemas[i].Active = active
				return schemas, nil
			}
		}
		return nil, forms.ErrNotFound
	})
}
