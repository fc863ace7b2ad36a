// Package reader runs the per-sentence workflow of the reading tool.
//
// A [Processor] analyses a sentence into raw units, merges them into
// linguistically coherent tokens, enriches the tokens with translations and
// computes the analysis statistics shown next to the sentence. For playback,
// [Processor.Speak] synthesises the sentence and aligns the speech timings
// onto the token boundaries. [Processor.ProcessBook] runs the sentence
// workflow over a whole book with bounded concurrency.
//
// Only analysis failures are fatal for a sentence ([IsFatal]); translation,
// dictionary and timing problems degrade the result and are reported as
// warnings.
package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/bookparser/internal/align"
	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/pkg/provider/analyzer"
	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
	"go.opentelemetry.io/otel/codes"
)

// Fatal sentence errors. No token sequence is produced when one occurs.
var (
	ErrEmptySentence = errors.New("reader: empty sentence")
	ErrNoTokens      = errors.New("reader: analyzer returned no tokens")
	ErrAnalyzer      = errors.New("reader: analyzer unavailable")
)

// ErrSpeechUnavailable is returned by [Processor.Speak] when no TTS provider
// is configured.
var ErrSpeechUnavailable = errors.New("reader: speech synthesis not configured")

// IsFatal reports whether err means the sentence could not be processed at all.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEmptySentence) || errors.Is(err, ErrNoTokens) || errors.Is(err, ErrAnalyzer)
}

// Status lines reported with every sentence result.
const (
	StatusAI            = "Processed with AI translations"
	StatusAIUnavailable = "Processed with dictionary only (AI unavailable)"
	StatusLocal         = "Processed with local dictionary"
)

const (
	defaultConcurrency = 4

	degradedSourceLLM  = "language-model"
	degradedSourceDict = "dictionary"

	kindAnalyze    = "analyze"
	kindSynthesize = "synthesize"
)

// SentenceRequest is the input to [Processor.Process].
type SentenceRequest struct {
	Text  string
	Index int

	// Previous and Next are the neighbouring sentences, used as context for
	// the language model.
	Previous string
	Next     string

	// Mode defaults to enrich.ModeEnhanced.
	Mode enrich.Mode

	// Merge overrides the processor's merge configuration for this sentence.
	Merge *merge.Config
}

// Analysis holds the tokens of a sentence and the counts derived from them.
type Analysis struct {
	TotalTokens   int                   `json:"totalTokens"`
	Words         int                   `json:"words"`
	Nouns         int                   `json:"nouns"`
	Verbs         int                   `json:"verbs"`
	Characters    int                   `json:"characters"`
	Tokens        []types.EnrichedToken `json:"tokens"`
	HasAIAnalysis bool                  `json:"hasAIAnalysis"`
	Merges        merge.Stats           `json:"merges,omitempty"`
}

// SentenceResult is the processed form of one sentence.
type SentenceResult struct {
	Status          string    `json:"result"`
	Processed       bool      `json:"processed"`
	OriginalText    string    `json:"originalText"`
	SentenceIndex   int       `json:"sentenceIndex"`
	FullTranslation string    `json:"fullSentenceTranslation"`
	Analysis        Analysis  `json:"analysis"`
	Warnings        []string  `json:"warnings,omitempty"`
	ProcessedAt     time.Time `json:"processedAt"`
}

// MergedTokens returns the merged tokens underlying the enriched ones.
func (r *SentenceResult) MergedTokens() []types.MergedToken {
	out := make([]types.MergedToken, len(r.Analysis.Tokens))
	for i, t := range r.Analysis.Tokens {
		out[i] = t.MergedToken
	}
	return out
}

// SpeechDefaults are applied to speech requests that leave a field unset.
type SpeechDefaults struct {
	Voice  types.VoiceProfile
	Speed  float64
	Volume float64
}

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithMerger sets the merger used when a request carries no override.
// Default: merge.DefaultConfig().
func WithMerger(m *merge.Merger) Option {
	return func(p *Processor) { p.merger = m }
}

// WithSpeech enables [Processor.Speak] with the given TTS provider.
func WithSpeech(t tts.Provider) Option {
	return func(p *Processor) { p.tts = t }
}

// WithSpeechDefaults sets the voice, speed and volume used when a speech
// request leaves them unset.
func WithSpeechDefaults(d SpeechDefaults) Option {
	return func(p *Processor) { p.speech = d }
}

// WithAligner replaces the default aligner.
func WithAligner(a *align.Aligner) Option {
	return func(p *Processor) { p.aligner = a }
}

// WithMetrics records pipeline metrics on m. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithConcurrency bounds the number of sentences [Processor.ProcessBook] runs
// at once. Default: 4.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Processor is safe for concurrent use.
type Processor struct {
	analyzer    analyzer.Provider
	enricher    *enrich.Enricher
	merger      *merge.Merger
	tts         tts.Provider
	speech      SpeechDefaults
	aligner     *align.Aligner
	metrics     *observe.Metrics
	concurrency int
}

// New returns a Processor. The analyzer and enricher are required.
func New(an analyzer.Provider, en *enrich.Enricher, opts ...Option) (*Processor, error) {
	if an == nil {
		return nil, errors.New("reader: analyzer must not be nil")
	}
	if en == nil {
		return nil, errors.New("reader: enricher must not be nil")
	}
	p := &Processor{
		analyzer:    an,
		enricher:    en,
		aligner:     align.New(),
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(p)
	}
	if p.merger == nil {
		m, err := merge.New(merge.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("reader: default merger: %w", err)
		}
		p.merger = m
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// CanSpeak reports whether a TTS provider is configured.
func (p *Processor) CanSpeak() bool {
	return p.tts != nil
}

// Process runs analysis, merging and enrichment for one sentence.
func (p *Processor) Process(ctx context.Context, req SentenceRequest) (*SentenceResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = enrich.ModeEnhanced
	}
	ctx, span := observe.StartSentenceSpan(ctx, "reader.Process", req.Index, req.Text,
		observe.AttrEnrichMode.String(string(mode)))
	defer span.End()

	start := time.Now()
	p.metrics.SentencesInFlight.Add(ctx, 1)
	defer func() {
		p.metrics.SentencesInFlight.Add(ctx, -1)
		p.metrics.SentenceDuration.Record(ctx, time.Since(start).Seconds())
	}()

	merger := p.merger
	if req.Merge != nil {
		m, err := merge.New(*req.Merge)
		if err != nil {
			return nil, fmt.Errorf("reader: merge options: %w", err)
		}
		merger = m
	}

	tokens, err := p.tokenize(ctx, req.Text, merger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(observe.AttrSentenceTokens.Int(len(tokens)))

	text := strings.TrimSpace(req.Text)
	er, err := p.enricher.Enrich(ctx, enrich.Request{
		Tokens:   tokens,
		Sentence: text,
		Previous: req.Previous,
		Next:     req.Next,
		Mode:     mode,
	})
	if err != nil {
		return nil, fmt.Errorf("reader: enrich: %w", err)
	}

	res := &SentenceResult{
		Status:          status(mode, er.UsedLanguageModel),
		Processed:       true,
		OriginalText:    text,
		SentenceIndex:   req.Index,
		FullTranslation: er.FullTranslation,
		Analysis:        analyse(text, er.Tokens, er.UsedLanguageModel),
		ProcessedAt:     time.Now().UTC(),
	}
	for _, w := range er.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
		switch {
		case errors.Is(w, enrich.ErrTranslationUnavailable):
			p.metrics.RecordDegraded(ctx, degradedSourceLLM)
		case errors.Is(w, enrich.ErrDictionaryUnavailable):
			p.metrics.RecordDegraded(ctx, degradedSourceDict)
		}
	}
	for reason, n := range res.Analysis.Merges {
		p.metrics.RecordTokensMerged(ctx, string(reason), n)
	}

	observe.Logger(ctx).Debug("sentence processed",
		"tokens", res.Analysis.TotalTokens,
		"status", res.Status,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// Tokenize analyses and merges text with the processor's merge configuration.
func (p *Processor) Tokenize(ctx context.Context, text string) ([]types.MergedToken, error) {
	return p.tokenize(ctx, text, p.merger)
}

func (p *Processor) tokenize(ctx context.Context, text string, merger *merge.Merger) ([]types.MergedToken, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySentence
	}

	start := time.Now()
	units, err := p.analyzer.Analyze(ctx, text)
	p.metrics.AnalyzeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "analyzer", kindAnalyze)
		p.metrics.RecordProviderRequest(ctx, "analyzer", kindAnalyze, "error")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reader: analyze: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrAnalyzer, err)
	}
	p.metrics.RecordProviderRequest(ctx, "analyzer", kindAnalyze, "ok")
	if len(units) == 0 {
		return nil, ErrNoTokens
	}
	return merger.Merge(units), nil
}

func status(mode enrich.Mode, usedLLM bool) string {
	switch {
	case mode == enrich.ModeLocal:
		return StatusLocal
	case usedLLM:
		return StatusAI
	default:
		return StatusAIUnavailable
	}
}

func analyse(text string, tokens []types.EnrichedToken, usedLLM bool) Analysis {
	a := Analysis{
		TotalTokens:   len(tokens),
		Characters:    utf8.RuneCountInString(text),
		Tokens:        tokens,
		HasAIAnalysis: usedLLM,
		Merges:        make(merge.Stats),
	}
	for _, t := range tokens {
		if t.Category.IsContent() {
			a.Words++
		}
		switch t.Category {
		case types.CategoryNoun:
			a.Nouns++
		case types.CategoryVerb:
			a.Verbs++
		}
		if t.MergeReason != types.ReasonNone {
			a.Merges[t.MergeReason]++
		}
	}
	return a
}
