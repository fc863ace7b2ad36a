// Package bookstore persists processed books.
//
// A [Book] keeps the original sentence list next to the processed result of
// every sentence that has been handled so far, so a reader can resume a book
// and only process what is missing. Two [Store] implementations exist: a
// directory of JSON documents ([FileStore]) and a PostgreSQL database
// ([PostgresStore]).
package bookstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/reader"
)

// FormatVersion is written into the metadata of every saved book.
const FormatVersion = "1.0"

var (
	// ErrNotFound is returned when a book does not exist.
	ErrNotFound = errors.New("bookstore: book not found")

	// ErrInvalid wraps every rejection of a malformed ID, book or sentence
	// index.
	ErrInvalid = errors.New("bookstore: invalid")
)

// Metadata describes a book without its content.
type Metadata struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"originalFilename"`
	BookName         string    `json:"bookname"`
	SavedAt          time.Time `json:"savedAt"`
	TotalLines       int       `json:"totalLines"`
	ProcessedLines   int       `json:"processedLines"`
	Version          string    `json:"version"`
}

// Settings records how a book was processed.
type Settings struct {
	MergeOptions   merge.Config `json:"mergeOptions"`
	ProcessingDate time.Time    `json:"processingDate"`
}

// Content holds the sentences of a book and the results processed so far,
// keyed by sentence index.
type Content struct {
	OriginalLines []string                       `json:"originalLines"`
	ProcessedData map[int]*reader.SentenceResult `json:"processedData"`
}

// Book is the saved document.
type Book struct {
	Metadata Metadata `json:"metadata"`
	Settings Settings `json:"settings"`
	Content  Content  `json:"content"`
}

// New returns an empty book for sentences. The ID is derived from name.
func New(name, filename string, sentences []string, opts merge.Config) *Book {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return &Book{
		Metadata: Metadata{
			ID:               Slug(name),
			OriginalFilename: filename,
			BookName:         name,
			TotalLines:       len(sentences),
			Version:          FormatVersion,
		},
		Settings: Settings{MergeOptions: opts},
		Content: Content{
			OriginalLines: sentences,
			ProcessedData: make(map[int]*reader.SentenceResult),
		},
	}
}

// SetSentence stores the result for sentence index and updates the counts.
func (b *Book) SetSentence(index int, res *reader.SentenceResult) error {
	if index < 0 || index >= len(b.Content.OriginalLines) {
		return fmt.Errorf("%w: sentence %d out of range [0, %d)", ErrInvalid, index, len(b.Content.OriginalLines))
	}
	if b.Content.ProcessedData == nil {
		b.Content.ProcessedData = make(map[int]*reader.SentenceResult)
	}
	b.Content.ProcessedData[index] = res
	b.Metadata.ProcessedLines = len(b.Content.ProcessedData)
	return nil
}

// Pending returns the indices of sentences without a result, in order.
func (b *Book) Pending() []int {
	var out []int
	for i := range b.Content.OriginalLines {
		if _, ok := b.Content.ProcessedData[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Validate reports all problems with b.
func (b *Book) Validate() error {
	var errs []error
	if err := ValidateID(b.Metadata.ID); err != nil {
		errs = append(errs, err)
	}
	if b.Metadata.BookName == "" {
		errs = append(errs, errors.New("bookname must not be empty"))
	}
	for i := range b.Content.ProcessedData {
		if i < 0 || i >= len(b.Content.OriginalLines) {
			errs = append(errs, fmt.Errorf("processed sentence %d out of range [0, %d)", i, len(b.Content.OriginalLines)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w book: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// normalize fills the derived metadata fields before a save.
func (b *Book) normalize(now time.Time) {
	b.Metadata.TotalLines = len(b.Content.OriginalLines)
	b.Metadata.ProcessedLines = len(b.Content.ProcessedData)
	b.Metadata.SavedAt = now
	if b.Metadata.Version == "" {
		b.Metadata.Version = FormatVersion
	}
	if b.Settings.ProcessingDate.IsZero() {
		b.Settings.ProcessingDate = now
	}
	if b.Content.OriginalLines == nil {
		b.Content.OriginalLines = []string{}
	}
	if b.Content.ProcessedData == nil {
		b.Content.ProcessedData = make(map[int]*reader.SentenceResult)
	}
}

// Slug turns a book name into an ID. Letters and digits of any script are
// kept; every other run of characters becomes a single '-'.
func Slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		dash = true
	}
	if sb.Len() == 0 {
		return "book"
	}
	return sb.String()
}

// ValidateID rejects IDs that are empty or could escape a directory.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: id must not be empty", ErrInvalid)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: id %q must not start with '.'", ErrInvalid, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: id %q must not contain path separators", ErrInvalid, id)
	}
	return nil
}
