package bookstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/internal/reader"
)

// ImportRequest describes a plain-text book to split, process and save.
type ImportRequest struct {
	// ID of the saved book. Derived from the name when empty.
	ID string

	// Name defaults to the file name without extension, then to ID.
	Name     string
	Filename string

	Text  string
	Mode  enrich.Mode
	Merge merge.Config
}

// SkippedSentence is a sentence that could not be processed at all.
type SkippedSentence struct {
	Index int
	Err   error
}

func (s SkippedSentence) Error() string {
	return fmt.Sprintf("sentence %d: %v", s.Index, s.Err)
}

// ImportResult is the saved book and the sentences left unprocessed.
type ImportResult struct {
	Book    *Book
	Skipped []SkippedSentence
}

// Import splits req.Text into sentences, processes all of them with p and
// saves the book to s. Sentences that fail fatally are left pending and
// reported in the result; any other processing or storage error aborts the
// import without saving.
func Import(ctx context.Context, s Store, p *reader.Processor, req ImportRequest) (*ImportResult, error) {
	sentences := reader.SplitSentences(req.Text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("%w: book has no sentences", ErrInvalid)
	}

	name := req.Name
	if name == "" && req.Filename == "" {
		name = req.ID
	}
	book := New(name, req.Filename, sentences, req.Merge)
	if req.ID != "" {
		book.Metadata.ID = req.ID
	}
	if err := ValidateID(book.Metadata.ID); err != nil {
		return nil, err
	}
	book.Settings.ProcessingDate = time.Now().UTC()

	ctx = observe.WithBook(ctx, book.Metadata.ID)
	log := observe.Logger(ctx).With("sentences", len(sentences), "mode", req.Mode)
	log.Info("importing book")

	processed, err := p.ProcessBook(ctx, sentences, reader.BookOptions{Mode: req.Mode, Merge: &req.Merge})
	if err != nil {
		return nil, fmt.Errorf("bookstore: import: %w", err)
	}
	res := &ImportResult{Book: book}
	for i, r := range processed.Results {
		if r != nil {
			if err := book.SetSentence(i, r); err != nil {
				return nil, err
			}
			continue
		}
		if err := processed.Errors[i]; err != nil {
			res.Skipped = append(res.Skipped, SkippedSentence{Index: i, Err: err})
		}
	}

	if err := s.Save(ctx, book); err != nil {
		return nil, err
	}
	log.Info("book imported", "processed", book.Metadata.ProcessedLines, "skipped", len(res.Skipped))
	return res, nil
}
