package jmdict_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/bookparser/pkg/provider/dictionary/jmdict"
)

const sample = `{
  "version": "3.6.1",
  "languages": ["eng"],
  "dictDate": "2025-01-01",
  "tags": {"v1": "Ichidan verb"},
  "words": [
    {
      "id": "1358280",
      "kanji": [{"common": true, "text": "食べる"}],
      "kana": [{"common": true, "text": "たべる"}],
      "sense": [
        {"partOfSpeech": ["v1", "vt"], "gloss": [{"lang": "eng", "text": "to eat"}]},
        {"partOfSpeech": ["v1"], "gloss": [{"lang": "eng", "text": "to live on"}, {"lang": "eng", "text": "to subsist on"}]}
      ]
    },
    {
      "id": "1358300",
      "kanji": [{"common": false, "text": "食べ物"}],
      "kana": [{"common": true, "text": "たべもの"}],
      "sense": [{"partOfSpeech": ["n"], "gloss": [{"lang": "eng", "text": "food"}]}]
    },
    {
      "id": "1628500",
      "kanji": [],
      "kana": [{"common": true, "text": "これ"}],
      "sense": [{"partOfSpeech": ["pn"], "gloss": [{"lang": "eng", "text": "this"}, {"lang": "ger", "text": "dies"}]}]
    },
    {
      "id": "1467640",
      "kanji": [{"common": true, "text": "猫"}],
      "kana": [{"common": true, "text": "ねこ"}],
      "sense": [{"partOfSpeech": ["n"], "gloss": [{"lang": "eng", "text": "cat"}]}]
    }
  ]
}`

func mustLoad(t *testing.T, opts ...jmdict.Option) *jmdict.Dictionary {
	t.Helper()
	d, err := jmdict.Load(strings.NewReader(sample), opts...)
	if err != nil {
		t.Fatalf("jmdict.Load: %v", err)
	}
	return d
}

func TestLoad(t *testing.T) {
	t.Parallel()

	d := mustLoad(t)
	if d.Len() != 4 {
		t.Errorf("Len = %d, want 4", d.Len())
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "[]", `{"words": {}}`, `{"words": [{"id": 1}]}`} {
		if _, err := jmdict.Load(strings.NewReader(in)); err == nil {
			t.Errorf("Load(%q): want error, got nil", in)
		}
	}
}

func TestValidate_Empty(t *testing.T) {
	t.Parallel()

	d, err := jmdict.Load(strings.NewReader(`{"words": []}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := d.Validate(); !errors.Is(err, jmdict.ErrEmpty) {
		t.Errorf("Validate = %v, want ErrEmpty", err)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	d := mustLoad(t)
	tests := []struct {
		name     string
		surface  string
		reading  string
		wantID   string
		meanings string
	}{
		{"exact kanji ranks first", "食べ", "", "1358280", "to eat; to live on, to subsist on"},
		{"kanji exact", "食べ物", "", "1358300", "food"},
		{"reading fallback", "食べた", "タベタ", "", ""},
		{"kana surface", "これ", "コレ", "1628500", "this"},
		{"katakana reading", "ネコ", "ネコ", "1467640", "cat"},
		{"no match", "犬", "イヌ", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := d.Lookup(context.Background(), tc.surface, tc.reading)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if tc.wantID == "" {
				if len(got) != 0 {
					t.Errorf("Lookup(%q, %q) = %d entries, want none", tc.surface, tc.reading, len(got))
				}
				return
			}
			if len(got) == 0 {
				t.Fatalf("Lookup(%q, %q): no entries", tc.surface, tc.reading)
			}
			if got[0].ID != tc.wantID {
				t.Errorf("first entry = %s, want %s", got[0].ID, tc.wantID)
			}
			if m := got[0].Meanings(); m != tc.meanings {
				t.Errorf("Meanings = %q, want %q", m, tc.meanings)
			}
			if got[0].Source != jmdict.Source {
				t.Errorf("Source = %q", got[0].Source)
			}
		})
	}
}

func TestLookup_Limit(t *testing.T) {
	t.Parallel()

	d := mustLoad(t, jmdict.WithLimit(1))
	got, err := d.Lookup(context.Background(), "食", "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Lookup: got %d entries, want 1", len(got))
	}
}

func TestLookup_CancelledContext(t *testing.T) {
	t.Parallel()

	d := mustLoad(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Lookup(ctx, "猫", ""); err == nil {
		t.Error("want error for cancelled context")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jmdict-eng.json")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := jmdict.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Len() != 4 {
		t.Errorf("Len = %d", d.Len())
	}
	if _, err := jmdict.Open(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Open of missing file: want error")
	}
}
