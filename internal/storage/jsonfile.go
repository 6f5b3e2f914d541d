package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kalambet/churchdesk/internal/forms"
)

// fileLocks serializes writers of the same file within the process, keyed
// by absolute path, so two stores opened on one file share a lock.
var fileLocks sync.Map

func lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	mu, _ := fileLocks.LoadOrStore(abs, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// jsonFile is a JSON array of T persisted by whole-file replacement.
type jsonFile[T any] struct {
	path   string
	mu     *sync.Mutex
	logger *slog.Logger
}

func newJSONFile[T any](path string, logger *slog.Logger) *jsonFile[T] {
	return &jsonFile[T]{path: path, mu: lockFor(path), logger: logger}
}

// load reads the array. A missing or blank file is an empty array.
func (f *jsonFile[T]) load() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &forms.StorageError{Op: "read", Path: f.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &forms.StorageError{Op: "read", Path: f.path, Err: err}
	}
	return items, nil
}

// read is load for listings: a file that cannot be read or parsed is
// logged and reads as empty.
func (f *jsonFile[T]) read() []T {
	items, err := f.load()
	if err != nil {
		f.logger.Warn("could not load store file, treating as empty", "path", f.path, "error", err)
		return nil
	}
	return items
}

// write replaces the file through a temp file and rename, so readers never
// see a partial array.
func (f *jsonFile[T]) write(items []T) error {
	if items == nil {
		items = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(items); err != nil {
		return &forms.StorageError{Op: "encode", Path: f.path, Err: err}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &forms.StorageError{Op: "write", Path: f.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return &forms.StorageError{Op: "write", Path: f.path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &forms.StorageError{Op: "write", Path: f.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &forms.StorageError{Op: "write", Path: f.path, Err: err}
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return &forms.StorageError{Op: "write", Path: f.path, Err: err}
	}
	return nil
}

// update runs a read-modify-write cycle under the file lock. It refuses to
// rewrite a file it could not parse, so existing records are never dropped.
func (f *jsonFile[T]) update(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return f.write(items)
}
