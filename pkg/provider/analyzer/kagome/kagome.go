// Package kagome implements analyzer.Provider on top of the pure-Go kagome
// tokenizer with the IPA dictionary.
package kagome

import (
	"context"
	"fmt"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/MrWong99/bookparser/pkg/provider/analyzer"
	"github.com/MrWong99/bookparser/pkg/types"
)

// IPA feature indexes.
const (
	featPOS           = 0
	featSubPOS        = 1
	featBaseForm      = 6
	featReading       = 7
	featPronunciation = 8
)

var categories = map[string]types.Category{
	"名詞":  types.CategoryNoun,
	"動詞":  types.CategoryVerb,
	"形容詞": types.CategoryAdjective,
	"副詞":  types.CategoryAdverb,
	"助詞":  types.CategoryParticle,
	"助動詞": types.CategoryAuxiliaryVerb,
	"記号":  types.CategoryPunctuation,
}

var subCategories = map[string]string{
	"自立":   types.SubIndependent,
	"非自立":  types.SubDependent,
	"接尾":   types.SubSuffix,
	"接続助詞": types.SubConnectiveParticle,
	"格助詞":  types.SubCaseParticle,
}

// Analyzer is an analyzer.Provider backed by kagome.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

var _ analyzer.Provider = (*Analyzer)(nil)

// New loads the IPA dictionary and returns an Analyzer.
func New() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("kagome: create tokenizer: %w", err)
	}
	return &Analyzer{t: t}, nil
}

// Analyze implements analyzer.Provider.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]types.RawUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("kagome: analyze: %w", err)
	}
	tokens := a.t.Tokenize(text)
	units := make([]types.RawUnit, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		units = append(units, Convert(tok.Surface, tok.Features()))
	}
	return units, nil
}

// Convert maps a surface and its IPA feature list to a RawUnit. Missing
// features ("*" or absent) fall back to the surface for the reading and base
// form.
func Convert(surface string, features []string) types.RawUnit {
	u := types.RawUnit{
		Surface:  surface,
		Category: types.CategoryOther,
	}
	if pos := feature(features, featPOS); pos != "" {
		if c, ok := categories[pos]; ok {
			u.Category = c
		}
	}
	if sub := feature(features, featSubPOS); sub != "" {
		if s, ok := subCategories[sub]; ok {
			u.SubCategory = s
		} else {
			u.SubCategory = sub
		}
	}
	u.BaseForm = orSurface(feature(features, featBaseForm), surface)
	u.Reading = orSurface(feature(features, featReading), surface)
	u.Pronunciation = feature(features, featPronunciation)
	return u
}

func feature(features []string, i int) string {
	if i >= len(features) || features[i] == "*" {
		return ""
	}
	return features[i]
}

func orSurface(v, surface string) string {
	if v == "" {
		return surface
	}
	return v
}
