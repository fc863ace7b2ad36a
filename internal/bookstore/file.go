package bookstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/bookparser/internal/reader"
)

const fileExt = ".json"

// FileStore is a [Store] keeping one JSON document per book in a directory.
type FileStore struct {
	dir string
	now func() time.Time

	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("bookstore: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bookstore: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// List implements [Store]. Unreadable documents are logged and skipped.
func (s *FileStore) List(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("bookstore: list: %w", err)
	}
	var out []Metadata
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		var doc struct {
			Metadata Metadata `json:"metadata"`
		}
		if err := readJSON(filepath.Join(s.dir, e.Name()), &doc); err != nil {
			slog.Warn("bookstore: skipping unreadable book", "file", e.Name(), "err", err)
			continue
		}
		if doc.Metadata.ID == "" {
			doc.Metadata.ID = strings.TrimSuffix(e.Name(), fileExt)
		}
		out = append(out, doc.Metadata)
	}
	slices.SortFunc(out, func(a, b Metadata) int {
		return cmp.Or(cmp.Compare(a.BookName, b.BookName), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Get implements [Store].
func (s *FileStore) Get(_ context.Context, id string) (*Book, error) {
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("bookstore: get: %w", err)
	}
	return s.read(id)
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, book *Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(book)
}

// SaveSentence implements [Store].
func (s *FileStore) SaveSentence(_ context.Context, id string, index int, res *reader.SentenceResult) error {
	if err := ValidateID(id); err != nil {
		return fmt.Errorf("bookstore: save sentence: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.read(id)
	if err != nil {
		return err
	}
	if err := book.SetSentence(index, res); err != nil {
		return err
	}
	return s.write(book)
}

// Delete implements [Store].
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return fmt.Errorf("bookstore: delete: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("bookstore: delete %q: %w", id, err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

func (s *FileStore) read(id string) (*Book, error) {
	var b Book
	if err := readJSON(s.path(id), &b); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("bookstore: read %q: %w", id, err)
	}
	b.Metadata.ID = id
	if b.Content.ProcessedData == nil {
		b.Content.ProcessedData = make(map[int]*reader.SentenceResult)
	}
	return &b, nil
}

// write replaces the document atomically through a temporary file.
func (s *FileStore) write(b *Book) error {
	b.normalize(s.now().UTC())
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("bookstore: marshal %q: %w", b.Metadata.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+b.Metadata.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("bookstore: write %q: %w", b.Metadata.ID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("bookstore: write %q: %w", b.Metadata.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("bookstore: write %q: %w", b.Metadata.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(b.Metadata.ID)); err != nil {
		return fmt.Errorf("bookstore: write %q: %w", b.Metadata.ID, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
