package reader

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"golang.org/x/sync/errgroup"
)

const sentenceEnd = "。"

// SplitSentences splits text into sentences. Every line is split after each
// "。", which stays with its sentence; a trailing fragment without one is a
// sentence of its own. Blank lines and whitespace-only fragments are skipped.
func SplitSentences(text string) []string {
	var out []string
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		for line != "" {
			i := strings.Index(line, sentenceEnd)
			if i < 0 {
				out = append(out, line)
				break
			}
			end := i + len(sentenceEnd)
			if s := strings.TrimSpace(line[:end]); s != sentenceEnd || len(out) == 0 {
				out = append(out, s)
			} else {
				// A lone "。" belongs to the previous sentence.
				out[len(out)-1] += s
			}
			line = strings.TrimSpace(line[end:])
		}
	}
	return out
}

// BookOptions configures [Processor.ProcessBook].
type BookOptions struct {
	// Mode defaults to enrich.ModeEnhanced.
	Mode enrich.Mode

	// Merge overrides the processor's merge configuration.
	Merge *merge.Config

	// OnResult, when set, is called once per successfully processed sentence
	// as soon as it completes. Calls may happen concurrently.
	OnResult func(index int, res *SentenceResult)
}

// BookResult holds the outcome of [Processor.ProcessBook]. Results and Errors
// are indexed like Sentences; exactly one of them is set per sentence.
type BookResult struct {
	Sentences []string
	Results   []*SentenceResult
	Errors    []error
}

// Processed returns the number of sentences with a result.
func (b *BookResult) Processed() int {
	n := 0
	for _, r := range b.Results {
		if r != nil {
			n++
		}
	}
	return n
}

// ProcessBook runs the sentence workflow over sentences, giving each one its
// neighbours as context. Fatal sentence errors are recorded per sentence and
// do not stop the book; any other error (such as cancellation) aborts it and
// discards sentences still in flight.
func (p *Processor) ProcessBook(ctx context.Context, sentences []string, opts BookOptions) (*BookResult, error) {
	ctx, span := observe.StartBookSpan(ctx, "reader.ProcessBook", len(sentences))
	defer span.End()

	res := &BookResult{
		Sentences: sentences,
		Results:   make([]*SentenceResult, len(sentences)),
		Errors:    make([]error, len(sentences)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, s := range sentences {
		req := SentenceRequest{Text: s, Index: i, Mode: opts.Mode, Merge: opts.Merge}
		if i > 0 {
			req.Previous = sentences[i-1]
		}
		if i < len(sentences)-1 {
			req.Next = sentences[i+1]
		}
		g.Go(func() error {
			r, err := p.Process(gctx, req)
			if err != nil {
				if IsFatal(err) {
					observe.Logger(observe.WithSentence(gctx, i)).Warn("reader: sentence skipped", "err", err)
					res.Errors[i] = err
					return nil
				}
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			res.Results[i] = r
			if opts.OnResult != nil {
				opts.OnResult(i, r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reader: process book: %w", err)
	}
	return res, nil
}
