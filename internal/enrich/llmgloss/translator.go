// Package llmgloss implements enrich.Translator with a language model.
//
// The [Translator] sends the sentence, its token surfaces and the
// neighbouring sentences to an [llm.Provider] and asks for a JSON object with
// a full-sentence translation and one gloss per token. Models often wrap the
// object in markdown fences or surround it with prose; the parser strips
// fences and otherwise falls back to the first balanced {...} or [...]
// substring before giving up with [ErrMalformedResponse].
package llmgloss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/pkg/provider/llm"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 10_000
)

// ErrMalformedResponse is returned when no translation can be recovered from
// the model output.
var ErrMalformedResponse = errors.New("llmgloss: malformed response")

const systemPrompt = `You are a Japanese language teacher helping a learner read a book.

For the current sentence, give a natural English translation of the whole sentence and, for every token listed, its English translation, its meaning in this context and its grammatical role (for example "subject marker", "past tense verb", "topic noun").

Use the previous and next sentences only as context. Keep every token surface exactly as given, in the given order, including repeated tokens.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "fullLineTranslation": "<translation of the current sentence>",
  "tokens": [
    {"surface": "<token>", "translation": "<english>", "contextualMeaning": "<meaning in context>", "grammaticalRole": "<role>"}
  ]
}`

// response is the expected JSON structure returned by the model.
// FullTranslation accepts the alternative key some models prefer.
type response struct {
	FullLineTranslation string         `json:"fullLineTranslation"`
	FullTranslation     string         `json:"fullTranslation"`
	Tokens              []enrich.Gloss `json:"tokens"`
}

// Option is a functional option for configuring a [Translator].
type Option func(*Translator)

// WithTemperature sets the sampling temperature. Default: 0.3.
func WithTemperature(temp float64) Option {
	return func(t *Translator) {
		t.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 10000.
func WithMaxTokens(n int) Option {
	return func(t *Translator) {
		t.maxTokens = n
	}
}

// Translator is safe for concurrent use.
type Translator struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

var _ enrich.Translator = (*Translator)(nil)

// New returns a Translator backed by provider.
func New(provider llm.Provider, opts ...Option) *Translator {
	t := &Translator{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate implements enrich.Translator.
func (t *Translator) Translate(ctx context.Context, req enrich.TranslationRequest) (*enrich.Translation, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(req)}},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
		JSONMode:     t.llm.Capabilities().SupportsJSONMode,
	})
	if err != nil {
		return nil, fmt.Errorf("llmgloss: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response", ErrMalformedResponse)
	}
	return Parse(resp.Content)
}

// BuildPrompt renders the user message for req.
func BuildPrompt(req enrich.TranslationRequest) string {
	var sb strings.Builder
	if req.Previous != "" {
		fmt.Fprintf(&sb, "Previous sentence: %s\n", req.Previous)
	}
	fmt.Fprintf(&sb, "Current sentence: %s\n", req.Sentence)
	if req.Next != "" {
		fmt.Fprintf(&sb, "Next sentence: %s\n", req.Next)
	}
	fmt.Fprintf(&sb, "\nTokens: %s", strings.Join(req.Surfaces, " | "))
	return sb.String()
}

// Parse recovers a Translation from raw model output. A bare JSON array is
// read as the token glosses alone. Output that carries neither a sentence
// translation nor any gloss is malformed.
func Parse(content string) (*enrich.Translation, error) {
	tr, err := decode([]byte(stripMarkdown(content)))
	if err == nil {
		return tr, nil
	}
	for i := 0; i < len(content); i++ {
		if content[i] != '{' && content[i] != '[' {
			continue
		}
		if frag, ok := balancedAt(content, i); ok {
			if tr, ferr := decode([]byte(frag)); ferr == nil {
				return tr, nil
			}
		}
	}
	return nil, err
}

func decode(raw []byte) (*enrich.Translation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var glosses []enrich.Gloss
		if err := json.Unmarshal(raw, &glosses); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		if len(glosses) == 0 {
			return nil, fmt.Errorf("%w: empty token list", ErrMalformedResponse)
		}
		return &enrich.Translation{Glosses: glosses}, nil
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	tr := &enrich.Translation{FullTranslation: r.FullLineTranslation, Glosses: r.Tokens}
	if tr.FullTranslation == "" {
		tr.FullTranslation = r.FullTranslation
	}
	if tr.FullTranslation == "" && len(tr.Glosses) == 0 {
		return nil, fmt.Errorf("%w: no translation and no tokens", ErrMalformedResponse)
	}
	return tr, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// balancedAt returns the balanced {...} or [...] substring of s starting at
// byte offset start. Brackets inside JSON strings are ignored.
func balancedAt(s string, start int) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
