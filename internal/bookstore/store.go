package bookstore

import (
	"context"

	"github.com/MrWong99/bookparser/internal/reader"
)

// Store persists books. Implementations must be safe for concurrent use.
type Store interface {
	// List returns the metadata of every book, ordered by name.
	List(ctx context.Context) ([]Metadata, error)

	// Get returns the book with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (*Book, error)

	// Save creates or replaces a book. The book is validated first and its
	// derived metadata (counts, save time) is updated in place.
	Save(ctx context.Context, book *Book) error

	// SaveSentence stores the result of one sentence of an existing book.
	SaveSentence(ctx context.Context, id string, index int, res *reader.SentenceResult) error

	// Delete removes a book. Deleting a missing book is not an error.
	Delete(ctx context.Context, id string) error
}
