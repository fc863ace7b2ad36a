// Package jmdict implements dictionary.Provider over the JSON distribution of
// JMdict published by the jmdict-simplified project
// (jmdict-eng-*.json).
//
// The whole dictionary is held in memory. Headwords are indexed in two sorted
// tables (kanji spellings and hiragana-normalised kana spellings) so lookups
// are prefix searches by binary search.
package jmdict

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/bookparser/pkg/kana"
	"github.com/MrWong99/bookparser/pkg/provider/dictionary"
)

// Source is the value of Entry.Source for every entry of this provider.
const Source = "JMDict"

const (
	defaultLimit = 3
	// candidates gathered per prefix search before ranking.
	maxCandidates = 32
)

// ErrEmpty is returned by Validate for a dictionary with no entries.
var ErrEmpty = errors.New("jmdict: dictionary has no entries")

type word struct {
	ID    string `json:"id"`
	Kanji []struct {
		Common bool   `json:"common"`
		Text   string `json:"text"`
	} `json:"kanji"`
	Kana []struct {
		Common bool   `json:"common"`
		Text   string `json:"text"`
	} `json:"kana"`
	Sense []struct {
		PartOfSpeech []string `json:"partOfSpeech"`
		Gloss        []struct {
			Lang string `json:"lang"`
			Text string `json:"text"`
		} `json:"gloss"`
	} `json:"sense"`
}

type indexEntry struct {
	key   string
	entry int
}

// Dictionary is an in-memory JMdict.
type Dictionary struct {
	entries []dictionary.Entry
	kanji   []indexEntry
	kana    []indexEntry
	limit   int
}

var _ dictionary.Provider = (*Dictionary)(nil)

// Option configures a Dictionary.
type Option func(*Dictionary)

// WithLimit sets the maximum number of entries returned by Lookup.
func WithLimit(n int) Option {
	return func(d *Dictionary) {
		if n > 0 {
			d.limit = n
		}
	}
}

// Open loads the dictionary file at path.
func Open(path string, opts ...Option) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jmdict: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f, opts...)
}

// Load reads a jmdict-simplified document from r. Only the "words" array is
// decoded; other top-level fields are skipped.
func Load(r io.Reader, opts ...Option) (*Dictionary, error) {
	d := &Dictionary{limit: defaultLimit}
	for _, o := range opts {
		o(d)
	}

	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("jmdict: read key: %w", err)
		}
		key, _ := tok.(string)
		if key != "words" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("jmdict: skip %q: %w", key, err)
			}
			continue
		}
		if err := expectDelim(dec, '['); err != nil {
			return nil, err
		}
		for dec.More() {
			var w word
			if err := dec.Decode(&w); err != nil {
				return nil, fmt.Errorf("jmdict: decode word %d: %w", len(d.entries), err)
			}
			d.add(w)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
	}
	d.index()
	return d, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("jmdict: expected %q: %w", want, err)
	}
	if got, ok := tok.(json.Delim); !ok || got != want {
		return fmt.Errorf("jmdict: expected %q, got %v", want, tok)
	}
	return nil
}

func (d *Dictionary) add(w word) {
	e := dictionary.Entry{ID: w.ID, Source: Source}
	for _, k := range w.Kanji {
		e.Kanji = append(e.Kanji, k.Text)
		e.Common = e.Common || k.Common
	}
	for _, k := range w.Kana {
		e.Readings = append(e.Readings, k.Text)
		e.Common = e.Common || k.Common
	}
	for _, s := range w.Sense {
		sense := dictionary.Sense{PartOfSpeech: s.PartOfSpeech}
		for _, g := range s.Gloss {
			if g.Lang == "" || g.Lang == "eng" {
				sense.Glosses = append(sense.Glosses, g.Text)
			}
		}
		e.Senses = append(e.Senses, sense)
	}
	idx := len(d.entries)
	d.entries = append(d.entries, e)
	for _, k := range e.Kanji {
		d.kanji = append(d.kanji, indexEntry{key: k, entry: idx})
	}
	for _, r := range e.Readings {
		d.kana = append(d.kana, indexEntry{key: kana.ToHiragana(r), entry: idx})
	}
}

func (d *Dictionary) index() {
	byKey := func(a, b indexEntry) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}
		return cmp.Compare(a.entry, b.entry)
	}
	slices.SortFunc(d.kanji, byKey)
	slices.SortFunc(d.kana, byKey)
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Lookup implements dictionary.Provider. The surface is searched among kanji
// spellings first, then the reading (katakana or hiragana) among kana
// spellings.
func (d *Dictionary) Lookup(ctx context.Context, surface, reading string) ([]dictionary.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("jmdict: lookup: %w", err)
	}
	if surface != "" {
		if got := d.search(d.kanji, surface); len(got) > 0 {
			return got, nil
		}
		if got := d.search(d.kana, kana.ToHiragana(surface)); len(got) > 0 {
			return got, nil
		}
	}
	if reading != "" {
		return d.search(d.kana, kana.ToHiragana(reading)), nil
	}
	return nil, nil
}

type candidate struct {
	entry int
	exact bool
	score float64
}

// search collects entries whose key starts with prefix, ranks them (exact
// match, similarity to the query, common words first) and returns the top
// d.limit entries.
func (d *Dictionary) search(table []indexEntry, prefix string) []dictionary.Entry {
	i := sort.Search(len(table), func(i int) bool { return table[i].key >= prefix })

	seen := make(map[int]int)
	var cands []candidate
	for ; i < len(table) && strings.HasPrefix(table[i].key, prefix); i++ {
		ie := table[i]
		c := candidate{
			entry: ie.entry,
			exact: ie.key == prefix,
			score: matchr.JaroWinkler(prefix, ie.key, false),
		}
		if pos, ok := seen[ie.entry]; ok {
			if better(c, cands[pos], d.entries) {
				cands[pos] = c
			}
			continue
		}
		if len(cands) == maxCandidates {
			break
		}
		seen[ie.entry] = len(cands)
		cands = append(cands, c)
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case better(a, b, d.entries):
			return -1
		case better(b, a, d.entries):
			return 1
		}
		return 0
	})

	out := make([]dictionary.Entry, 0, min(len(cands), d.limit))
	for _, c := range cands[:min(len(cands), d.limit)] {
		out = append(out, d.entries[c.entry])
	}
	return out
}

func better(a, b candidate, entries []dictionary.Entry) bool {
	if a.exact != b.exact {
		return a.exact
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return entries[a.entry].Common && !entries[b.entry].Common
}

// Validate reports whether the dictionary is usable.
func (d *Dictionary) Validate() error {
	if len(d.entries) == 0 {
		return ErrEmpty
	}
	return nil
}
