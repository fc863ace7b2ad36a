package observe

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/bookparser"

// Span attribute keys of the reading workflow.
const (
	AttrSentenceIndex  = attribute.Key("sentence.index")
	AttrSentenceRunes  = attribute.Key("sentence.runes")
	AttrSentenceTokens = attribute.Key("sentence.tokens")
	AttrBookID         = attribute.Key("book.id")
	AttrBookSentences  = attribute.Key("book.sentences")
	AttrEnrichMode     = attribute.Key("enrich.mode")
)

// Tracer returns the bookparser tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span that carries the book and sentence recorded in ctx
// by [WithBook] and [WithSentence]. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := scopeFrom(ctx).attributes(); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// StartSentenceSpan starts a span for the sentence at index. The returned
// context carries the index, so child spans and [Logger] are tagged with it.
func StartSentenceSpan(ctx context.Context, name string, index int, text string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = WithSentence(ctx, index)
	attrs = append(attrs, AttrSentenceRunes.Int(utf8.RuneCountInString(text)))
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartBookSpan starts a span covering sentences sentences of the book
// recorded in ctx, if any.
func StartBookSpan(ctx context.Context, name string, sentences int) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(AttrBookSentences.Int(sentences)))
}

type scopeKey struct{}

// scope identifies the part of a book a request is working on.
type scope struct {
	bookID      string
	sentence    int
	hasSentence bool
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func (s scope) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if s.bookID != "" {
		attrs = append(attrs, AttrBookID.String(s.bookID))
	}
	if s.hasSentence {
		attrs = append(attrs, AttrSentenceIndex.Int(s.sentence))
	}
	return attrs
}

// WithBook records the id of the book being processed in ctx.
func WithBook(ctx context.Context, id string) context.Context {
	s := scopeFrom(ctx)
	s.bookID = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithSentence records the index of the sentence being processed in ctx.
func WithSentence(ctx context.Context, index int) context.Context {
	s := scopeFrom(ctx)
	s.sentence, s.hasSentence = index, true
	return context.WithValue(ctx, scopeKey{}, s)
}

// CorrelationID is the trace id of the span in ctx, or "". The HTTP API
// returns it as X-Correlation-ID so a reader can quote it with a bad parse.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger tagged with the book, the sentence and
// the trace of ctx, where present.
func Logger(ctx context.Context) *slog.Logger {
	var args []any
	s := scopeFrom(ctx)
	if s.bookID != "" {
		args = append(args, slog.String("book_id", s.bookID))
	}
	if s.hasSentence {
		args = append(args, slog.Int("sentence", s.sentence))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
