package storage

import (
	"context"
	"iter"
	"log/slog"

	"github.com/kalambet/churchdesk/internal/forms"
)

// JSONResponseStore keeps every response of every form in one JSON array file.
type JSONResponseStore struct {
	file *jsonFile[forms.Response]
}

func NewJSONResponseStore(path string, logger *slog.Logger) *JSONResponseStore {
	return &JSONResponseStore{file: newJSONFile[forms.Response](path, logger)}
}

func (s *JSONResponseStore) AppendResponse(ctx context.Context, r forms.Response) error {
	return s.file.update(ctx, func(rs []forms.Response) ([]forms.Response, error) {
		return append(rs, r), nil
	})
}

// Responses yields the form's responses in insertion order. Each range over
// the sequence re-reads the file.
func (s *JSONResponseStore) Responses(ctx context.Context, formID string) iter.Seq2[forms.Response, error] {
	return func(yield func(forms.Response, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(forms.Response{}, err)
			return
		}
		for _, r := range s.file.read() {
			if r.FormID != formID {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// CountByForm returns the number of responses per form id.
func (s *JSONResponseStore) CountByForm(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range s.file.read() {
		counts[r.FormID]++
	}
	return counts, nil
}
