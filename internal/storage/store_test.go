package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/churchdesk/internal/forms"
)

var testNow = time.Date(2025, 3, 9, 10, 30, 15, 0, time.Local)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backends returns a fresh store per backend so every behaviour test runs
// against both.
func backends(t *testing.T) map[string]*Store {
	t.Helper()
	jsonStore, err := Open(t.TempDir(), BackendJSON, quietLogger())
	if err != nil {
		t.Fatalf("Open(json): %v", err)
	}
	sqliteStore, err := Open(":memory:", BackendSQLite, quietLogger())
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]*Store{BackendJSON: jsonStore, BackendSQLite: sqliteStore}
}

func sampleSchema(id string) forms.Schema {
	return forms.Schema{
		ID:          id,
		Title:       "Inscrição Retiro",
		Description: "Retiro de jovens",
		Fields: []forms.Field{
			{ID: id + "-f1", Kind: forms.KindShortText, Label: "Nome", Required: true},
			{ID: id + "-f2", Kind: forms.KindSingleChoice, Label: "Camiseta", Choices: []string{"P", "M", "G"}},
			{ID: id + "-f3", Kind: forms.KindBoolean, Label: "Autorização", Required: true},
		},
		CreatedAt: forms.NewTimestamp(testNow),
		Active:    true,
	}
}

func sampleResponse(id, formID string, at time.Time) forms.Response {
	var a forms.Answers
	a.Set("Nome", "Ana")
	a.Set("Idade", float64(17))
	a.Set("Autorização", true)
	return forms.Response{ID: id, FormID: formID, Answers: a, SubmittedAt: forms.NewTimestamp(at)}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(t.TempDir(), "xlsx", quietLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSchemas_EmptyStore(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.ListSchemas(context.Background())
			if err != nil {
				t.Fatalf("ListSchemas: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("got %d schemas, want 0", len(got))
			}
		})
	}
}

func TestSchemas_AppendAndList(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := []forms.Schema{sampleSchema("a"), sampleSchema("b")}
			for _, sc := range want {
				if err := s.AppendSchema(ctx, sc); err != nil {
					t.Fatalf("AppendSchema: %v", err)
				}
			}
			got, err := s.ListSchemas(ctx)
			if err != nil {
				t.Fatalf("ListSchemas: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("schemas mismatch (-want +got):\n%s", diff)
			}

			one, err := s.GetSchema(ctx, "b")
			if err != nil {
				t.Fatalf("GetSchema: %v", err)
			}
			if diff := cmp.Diff(want[1], one); diff != "" {
				t.Errorf("GetSchema mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSchemas_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetSchema(ctx, "missing"); !errors.Is(err, forms.ErrNotFound) {
				t.Errorf("GetSchema error = %v, want ErrNotFound", err)
			}
			if err := s.RemoveSchema(ctx, "missing"); !errors.Is(err, forms.ErrNotFound) {
				t.Errorf("RemoveSchema error = %v, want ErrNotFound", err)
			}
			if err := s.SetActive(ctx, "missing", false); !errors.Is(err, forms.ErrNotFound) {
				t.Errorf("SetActive error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSchemas_RemoveAndToggle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				if err := s.AppendSchema(ctx, sampleSchema(id)); err != nil {
					t.Fatalf("AppendSchema: %v", err)
				}
			}
			if err := s.RemoveSchema(ctx, "b"); err != nil {
				t.Fatalf("RemoveSchema: %v", err)
			}
			if err := s.SetActive(ctx, "c", false); err != nil {
				t.Fatalf("SetActive: %v", err)
			}

			got, err := s.ListSchemas(ctx)
			if err != nil {
				t.Fatalf("ListSchemas: %v", err)
			}
			var ids []string
			for _, sc := range got {
				ids = append(ids, sc.ID)
			}
			if diff := cmp.Diff([]string{"a", "c"}, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			if !got[0].Active || got[1].Active {
				t.Errorf("active flags = %v,%v, want true,false", got[0].Active, got[1].Active)
			}
		})
	}
}

func TestResponses_AppendQueryCount(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r1 := sampleResponse("r1", "a", testNow)
			r2 := sampleResponse("r2", "b", testNow.Add(time.Minute))
			r3 := sampleResponse("r3", "a", testNow.Add(2*time.Minute))
			for _, r := range []forms.Response{r1, r2, r3} {
				if err := s.AppendResponse(ctx, r); err != nil {
					t.Fatalf("AppendResponse: %v", err)
				}
			}

			got, err := forms.CollectResponses(s.Responses(ctx, "a"))
			if err != nil {
				t.Fatalf("Responses: %v", err)
			}
			if diff := cmp.Diff([]forms.Response{r1, r3}, got); diff != "" {
				t.Errorf("responses mismatch (-want +got):\n%s", diff)
			}

			// Ranging the same sequence twice yields the same result.
			seq := s.Responses(ctx, "a")
			first, _ := forms.CollectResponses(seq)
			second, _ := forms.CollectResponses(seq)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("re-query mismatch (-first +second):\n%s", diff)
			}

			counts, err := s.CountByForm(ctx)
			if err != nil {
				t.Fatalf("CountByForm: %v", err)
			}
			if diff := cmp.Diff(map[string]int{"a": 2, "b": 1}, counts); diff != "" {
				t.Errorf("counts mismatch (-want +got):\n%s", diff)
			}

			none, err := forms.CollectResponses(s.Responses(ctx, "zzz"))
			if err != nil || len(none) != 0 {
				t.Errorf("unknown form = %v, %v; want empty", none, err)
			}
		})
	}
}

// TestResponses_RemoveSchemaKeepsResponses verifies deleting a form leaves
// its responses queryable.
func TestResponses_RemoveSchemaKeepsResponses(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.AppendSchema(ctx, sampleSchema("a")); err != nil {
				t.Fatal(err)
			}
			if err := s.AppendResponse(ctx, sampleResponse("r1", "a", testNow)); err != nil {
				t.Fatal(err)
			}
			if err := s.RemoveSchema(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			got, err := forms.CollectResponses(s.Responses(ctx, "a"))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 {
				t.Errorf("got %d responses, want 1", len(got))
			}
		})
	}
}

func TestResponses_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.AppendResponse(ctx, sampleResponse(fmt.Sprintf("r%02d", i), "a", testNow))
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("AppendResponse: %v", err)
				}
			}

			got, err := forms.CollectResponses(s.Responses(ctx, "a"))
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != n {
				t.Errorf("got %d responses, want %d", len(got), n)
			}
		})
	}
}

// TestJSON_CorruptFileReadsEmpty verifies a garbage file lists as empty
// while writes refuse to replace it.
func TestJSON_CorruptFileReadsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	garbage := []byte("{not json")
	schemasPath := filepath.Join(dir, SchemasFile)
	responsesPath := filepath.Join(dir, ResponsesFile)
	for _, p := range []string{schemasPath, responsesPath} {
		if err := os.WriteFile(p, garbage, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewJSONSchemaStore(schemasPath, quietLogger())
	got, err := s.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("ListSchemas: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d schemas, want 0", len(got))
	}
	if err := s.AppendSchema(ctx, sampleSchema("a")); !forms.IsStorage(err) {
		t.Errorf("AppendSchema error = %v, want StorageError", err)
	}
	if err := s.SetActive(ctx, "a", false); !forms.IsStorage(err) {
		t.Errorf("SetActive error = %v, want StorageError", err)
	}

	r := NewJSONResponseStore(responsesPath, quietLogger())
	if err := r.AppendResponse(ctx, sampleResponse("r1", "a", testNow)); !forms.IsStorage(err) {
		t.Errorf("AppendResponse error = %v, want StorageError", err)
	}

	for _, p := range []string{schemasPath, responsesPath} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != string(garbage) {
			t.Errorf("%s was rewritten to %q", filepath.Base(p), data)
		}
	}
}

// TestJSON_WireFormat checks the persisted file uses the field names other
// readers of the data directory expect.
func TestJSON_WireFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, BackendJSON, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendResponse(ctx, sampleResponse("r1", "a", testNow)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ResponsesFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"id_resposta": "r1"`, `"id_formulario": "a"`, `"enviado_em": "09/03/2025 10:30:15"`, `"Autorização": true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file missing %s:\n%s", want, data)
		}
	}
}

// TestJSON_SharedFileLock verifies two stores opened on the same path do not
// lose each other's writes.
func TestJSON_SharedFileLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ResponsesFile)
	a := NewJSONResponseStore(path, quietLogger())
	b := NewJSONResponseStore(path, quietLogger())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.AppendResponse(ctx, sampleResponse(fmt.Sprintf("a%d", i), "f", testNow))
		}()
		go func() {
			defer wg.Done()
			b.AppendResponse(ctx, sampleResponse(fmt.Sprintf("b%d", i), "f", testNow))
		}()
	}
	wg.Wait()

	counts, _ := a.CountByForm(ctx)
	if counts["f"] != 20 {
		t.Errorf("count = %d, want 20", counts["f"])
	}
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("first OpenSQLite: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := s1.AppendSchema(context.Background(), sampleSchema("a")); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("second OpenSQLite: %v", err)
	}
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if diff := cmp.Diff(v1, v2); diff != "" {
		t.Errorf("migrations changed (-first +second):\n%s", diff)
	}
	if _, err := s2.GetSchema(context.Background(), "a"); err != nil {
		t.Errorf("schema lost across reopen: %v", err)
	}
}

func TestSQLite_IndexExists(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", "idx_responses_form").Scan(&count); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if count != 1 {
		t.Error("index idx_responses_form not found")
	}
}

func TestSQLite_DuplicateResponseID(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.AppendResponse(ctx, sampleResponse("r1", "a", testNow)); err != nil {
		t.Fatal(err)
	}
	err = s.AppendResponse(ctx, sampleResponse("r1", "a", testNow))
	if !forms.IsStorage(err) {
		t.Errorf("error = %v, want StorageError", err)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_forms.sql")
	if err != nil || v != 1 {
		t.Errorf("parseMigrationVersion = %d, %v; want 1, nil", v, err)
	}
	if _, err := parseMigrationVersion("forms.sql"); err == nil {
		t.Error("expected error for unnumbered file")
	}
}
