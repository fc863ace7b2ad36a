package bookstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/bookparser/internal/reader"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the book tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
    id                TEXT PRIMARY KEY,
    bookname          TEXT NOT NULL,
    original_filename TEXT NOT NULL DEFAULT '',
    version           TEXT NOT NULL DEFAULT '1.0',
    merge_options     JSONB NOT NULL DEFAULT '{}',
    original_lines    JSONB NOT NULL DEFAULT '[]',
    processing_date   TIMESTAMPTZ NOT NULL DEFAULT now(),
    saved_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS book_sentences (
    book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    idx        INTEGER NOT NULL,
    result     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (book_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_books_bookname ON books(bookname);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Book settings and lines
// are stored as JSONB on the books row; every processed sentence is one
// book_sentences row so sentences can be saved independently.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("bookstore: migrate: %w", err)
	}
	return nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context) ([]Metadata, error) {
	const query = `
		SELECT b.id, b.bookname, b.original_filename, b.version, b.saved_at,
		       jsonb_array_length(b.original_lines),
		       (SELECT count(*) FROM book_sentences s WHERE s.book_id = b.id)
		FROM books b
		ORDER BY b.bookname, b.id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("bookstore: list: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.ID, &m.BookName, &m.OriginalFilename, &m.Version, &m.SavedAt,
			&m.TotalLines, &m.ProcessedLines); err != nil {
			return nil, fmt.Errorf("bookstore: list scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookstore: list: %w", err)
	}
	return out, nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Book, error) {
	const query = `
		SELECT id, bookname, original_filename, version, merge_options,
		       original_lines, processing_date, saved_at
		FROM books
		WHERE id = $1`

	var b Book
	var optsJSON, linesJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&b.Metadata.ID, &b.Metadata.BookName, &b.Metadata.OriginalFilename, &b.Metadata.Version,
		&optsJSON, &linesJSON, &b.Settings.ProcessingDate, &b.Metadata.SavedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("bookstore: get %q: %w", id, err)
	}
	if err := json.Unmarshal(optsJSON, &b.Settings.MergeOptions); err != nil {
		return nil, fmt.Errorf("bookstore: unmarshal merge_options: %w", err)
	}
	if err := json.Unmarshal(linesJSON, &b.Content.OriginalLines); err != nil {
		return nil, fmt.Errorf("bookstore: unmarshal original_lines: %w", err)
	}

	b.Content.ProcessedData, err = s.sentences(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Metadata.TotalLines = len(b.Content.OriginalLines)
	b.Metadata.ProcessedLines = len(b.Content.ProcessedData)
	return &b, nil
}

func (s *PostgresStore) sentences(ctx context.Context, id string) (map[int]*reader.SentenceResult, error) {
	const query = `SELECT idx, result FROM book_sentences WHERE book_id = $1 ORDER BY idx`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("bookstore: get %q sentences: %w", id, err)
	}
	defer rows.Close()

	out := make(map[int]*reader.SentenceResult)
	for rows.Next() {
		var idx int
		var raw []byte
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, fmt.Errorf("bookstore: sentence scan: %w", err)
		}
		var res reader.SentenceResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("bookstore: unmarshal sentence %d: %w", idx, err)
		}
		out[idx] = &res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookstore: get %q sentences: %w", id, err)
	}
	return out, nil
}

// Save implements [Store]. Sentence rows not present in the book are removed.
func (s *PostgresStore) Save(ctx context.Context, book *Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	book.normalize(time.Now().UTC())

	optsJSON, err := json.Marshal(book.Settings.MergeOptions)
	if err != nil {
		return fmt.Errorf("bookstore: marshal merge_options: %w", err)
	}
	linesJSON, err := json.Marshal(book.Content.OriginalLines)
	if err != nil {
		return fmt.Errorf("bookstore: marshal original_lines: %w", err)
	}

	const query = `
		INSERT INTO books (
			id, bookname, original_filename, version, merge_options,
			original_lines, processing_date, saved_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			bookname = EXCLUDED.bookname,
			original_filename = EXCLUDED.original_filename,
			version = EXCLUDED.version,
			merge_options = EXCLUDED.merge_options,
			original_lines = EXCLUDED.original_lines,
			processing_date = EXCLUDED.processing_date,
			saved_at = EXCLUDED.saved_at`

	m := book.Metadata
	if _, err := s.db.Exec(ctx, query,
		m.ID, m.BookName, m.OriginalFilename, m.Version, optsJSON,
		linesJSON, book.Settings.ProcessingDate, m.SavedAt,
	); err != nil {
		return fmt.Errorf("bookstore: save %q: %w", m.ID, err)
	}

	keep := make([]int32, 0, len(book.Content.ProcessedData))
	for idx, res := range book.Content.ProcessedData {
		if err := s.upsertSentence(ctx, m.ID, idx, res); err != nil {
			return err
		}
		keep = append(keep, int32(idx))
	}
	const prune = `DELETE FROM book_sentences WHERE book_id = $1 AND NOT (idx = ANY($2))`
	if _, err := s.db.Exec(ctx, prune, m.ID, keep); err != nil {
		return fmt.Errorf("bookstore: save %q: prune sentences: %w", m.ID, err)
	}
	return nil
}

// SaveSentence implements [Store].
func (s *PostgresStore) SaveSentence(ctx context.Context, id string, index int, res *reader.SentenceResult) error {
	const query = `
		UPDATE books SET saved_at = now()
		WHERE id = $1
		RETURNING jsonb_array_length(original_lines)`

	var total int
	if err := s.db.QueryRow(ctx, query, id).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return fmt.Errorf("bookstore: save sentence %q: %w", id, err)
	}
	if index < 0 || index >= total {
		return fmt.Errorf("%w: sentence %d out of range [0, %d)", ErrInvalid, index, total)
	}
	return s.upsertSentence(ctx, id, index, res)
}

func (s *PostgresStore) upsertSentence(ctx context.Context, id string, index int, res *reader.SentenceResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("bookstore: marshal sentence %d: %w", index, err)
	}
	const query = `
		INSERT INTO book_sentences (book_id, idx, result) VALUES ($1,$2,$3)
		ON CONFLICT (book_id, idx) DO UPDATE SET
			result = EXCLUDED.result,
			updated_at = now()`
	if _, err := s.db.Exec(ctx, query, id, index, raw); err != nil {
		return fmt.Errorf("bookstore: save sentence %d of %q: %w", index, id, err)
	}
	return nil
}

// Delete implements [Store]. Sentence rows are removed by the cascade.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
		return fmt.Errorf("bookstore: delete %q: %w", id, err)
	}
	return nil
}
