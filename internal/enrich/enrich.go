// Package enrich attaches translation metadata to merged tokens.
//
// Two collaborators feed it: a dictionary (always consulted when a field is
// still missing) and an optional [Translator] backed by a language model. In
// [ModeEnhanced] the model's per-token gloss wins when present and the
// dictionary fills what it leaves out; in [ModeLocal] only the dictionary is
// used. Glosses are matched to tokens by exact surface equality and the first
// matching gloss wins, so a sentence repeating a surface gets the same gloss
// for every occurrence.
//
// Neither collaborator can fail a sentence. Their errors become warnings on
// the [Result] and the affected fields keep [types.Unavailable].
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/pkg/provider/dictionary"
	"github.com/MrWong99/bookparser/pkg/types"
)

// Mode selects the enrichment sources.
type Mode string

const (
	// ModeEnhanced uses the language model first and the dictionary as
	// fallback.
	ModeEnhanced Mode = "enhanced"

	// ModeLocal uses the dictionary only.
	ModeLocal Mode = "local"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeEnhanced || m == ModeLocal
}

const defaultTimeout = 120 * time.Second

// ErrTranslationUnavailable wraps every language-model failure reported as a
// warning.
var ErrTranslationUnavailable = errors.New("enrich: translation unavailable")

// ErrDictionaryUnavailable wraps dictionary failures reported as a warning.
var ErrDictionaryUnavailable = errors.New("enrich: dictionary unavailable")

// Gloss is the model's reading of one token in context.
type Gloss struct {
	Surface           string `json:"surface"`
	Translation       string `json:"translation"`
	ContextualMeaning string `json:"contextualMeaning"`
	GrammaticalRole   string `json:"grammaticalRole"`
}

// TranslationRequest is the input to a [Translator].
type TranslationRequest struct {
	Sentence string
	Surfaces []string
	Previous string
	Next     string
}

// Translation is the output of a [Translator].
type Translation struct {
	FullTranslation string
	Glosses         []Gloss
}

// Translator produces a sentence translation and per-token glosses.
type Translator interface {
	Translate(ctx context.Context, req TranslationRequest) (*Translation, error)
}

// Request is the input to [Enricher.Enrich].
type Request struct {
	Tokens   []types.MergedToken
	Sentence string

	// Previous and Next are the neighbouring sentences, used as context for
	// the model. Either may be empty.
	Previous string
	Next     string

	// Mode defaults to ModeEnhanced when empty.
	Mode Mode
}

// Result is the output of [Enricher.Enrich].
type Result struct {
	Tokens []types.EnrichedToken

	// FullTranslation is the model's sentence translation or types.Unavailable.
	FullTranslation string

	// UsedLanguageModel is true when the model answered successfully.
	UsedLanguageModel bool

	// Warnings lists the recovered collaborator failures.
	Warnings []error
}

// Option is a functional option for [Enricher].
type Option func(*Enricher)

// WithTranslator sets the language-model translator. Without one, enhanced
// requests behave like local ones and record a warning.
func WithTranslator(t Translator) Option {
	return func(e *Enricher) {
		e.translator = t
	}
}

// WithTimeout bounds each translator call. Default: 120s.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMetrics records translator latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// Enricher is safe for concurrent use.
type Enricher struct {
	dict       dictionary.Provider
	translator Translator
	timeout    time.Duration
	metrics    *observe.Metrics
}

// New returns an Enricher using dict for lookups. dict may be nil, in which
// case only the model can fill fields.
func New(dict dictionary.Provider, opts ...Option) *Enricher {
	e := &Enricher{
		dict:    dict,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// HasTranslator reports whether enhanced mode can reach a model.
func (e *Enricher) HasTranslator() bool {
	return e.translator != nil
}

// Enrich returns one EnrichedToken per input token, in order. The only error
// it returns is cancellation of ctx; collaborator failures are warnings.
func (e *Enricher) Enrich(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		Tokens:          make([]types.EnrichedToken, len(req.Tokens)),
		FullTranslation: types.Unavailable,
	}
	for i, t := range req.Tokens {
		res.Tokens[i] = types.NewEnrichedToken(t)
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeEnhanced
	}

	var glosses map[string]Gloss
	if mode == ModeEnhanced {
		tr, err := e.translate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("enrich: %w", ctx.Err())
			}
			slog.Warn("enrich: language model failed, using dictionary only", "err", err)
			res.Warnings = append(res.Warnings, err)
		} else {
			res.UsedLanguageModel = true
			if tr.FullTranslation != "" {
				res.FullTranslation = tr.FullTranslation
			}
			glosses = firstBySurface(tr.Glosses)
		}
	}

	lookup := e.newLookup()
	for i := range res.Tokens {
		tok := &res.Tokens[i]
		if g, ok := glosses[tok.Surface]; ok {
			applyGloss(tok, g)
		}
		if tok.Translation != types.Unavailable || tok.IsPunctuation() {
			continue
		}
		if meaning := lookup.meaning(ctx, tok.MergedToken); meaning != "" {
			tok.Translation = meaning
			tok.TranslationSource = types.SourceDictionary
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	if w := lookup.warning(); w != nil {
		res.Warnings = append(res.Warnings, w)
	}
	return res, nil
}

func (e *Enricher) translate(ctx context.Context, req Request) (*Translation, error) {
	if e.translator == nil {
		return nil, fmt.Errorf("%w: no language model configured", ErrTranslationUnavailable)
	}
	surfaces := make([]string, len(req.Tokens))
	for i, t := range req.Tokens {
		surfaces[i] = t.Surface
	}

	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	tctx, span := observe.StartSpan(tctx, "enrich.translate")
	defer span.End()

	start := time.Now()
	tr, err := e.translator.Translate(tctx, TranslationRequest{
		Sentence: req.Sentence,
		Surfaces: surfaces,
		Previous: req.Previous,
		Next:     req.Next,
	})
	if e.metrics != nil {
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			e.metrics.RecordProviderError(ctx, "llm", "translate")
		}
		e.metrics.RecordProviderRequest(ctx, "llm", "translate", status)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrTranslationUnavailable, err)
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: empty response", ErrTranslationUnavailable)
	}
	return tr, nil
}

// firstBySurface indexes glosses by surface, keeping the first one seen.
func firstBySurface(glosses []Gloss) map[string]Gloss {
	m := make(map[string]Gloss, len(glosses))
	for _, g := range glosses {
		if _, ok := m[g.Surface]; !ok {
			m[g.Surface] = g
		}
	}
	return m
}

func applyGloss(tok *types.EnrichedToken, g Gloss) {
	if g.Translation != "" {
		tok.Translation = g.Translation
		tok.TranslationSource = types.SourceLanguageModel
	}
	if g.ContextualMeaning != "" {
		tok.ContextualMeaning = g.ContextualMeaning
	}
	if g.GrammaticalRole != "" {
		tok.GrammaticalRole = g.GrammaticalRole
	}
}

// lookup memoises dictionary results for one sentence and counts failures.
type lookup struct {
	dict    dictionary.Provider
	cache   map[[2]string]string
	failed  int
	total   int
	lastErr error
}

func (e *Enricher) newLookup() *lookup {
	return &lookup{dict: e.dict, cache: make(map[[2]string]string)}
}

func (l *lookup) meaning(ctx context.Context, t types.MergedToken) string {
	if l.dict == nil {
		return ""
	}
	key := [2]string{t.Surface, t.Reading}
	if m, ok := l.cache[key]; ok {
		return m
	}
	l.total++
	entries, err := l.dict.Lookup(ctx, t.Surface, t.Reading)
	if err != nil {
		l.failed++
		l.lastErr = err
		return ""
	}
	m := ""
	if len(entries) > 0 {
		m = entries[0].Meanings()
	}
	l.cache[key] = m
	return m
}

func (l *lookup) warning() error {
	if l.failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d lookups failed: %w", ErrDictionaryUnavailable, l.failed, l.total, l.lastErr)
}
