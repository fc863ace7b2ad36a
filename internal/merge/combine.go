package merge

import (
	"strings"

	"github.com/MrWong99/bookparser/pkg/types"
)

// combine concatenates parts into one token. Readings and pronunciations fall
// back to the unit surface so the reading of a merged token always covers the
// whole surface. Constituents are flattened into a fresh slice.
func combine(parts []types.MergedToken) types.MergedToken {
	var surface, reading, pron strings.Builder
	n := 0
	for _, p := range parts {
		n += len(p.Constituents)
	}
	constituents := make([]types.RawUnit, 0, n)
	for _, p := range parts {
		surface.WriteString(p.Surface)
		reading.WriteString(p.ReadingOrSurface())
		if p.Pronunciation != "" {
			pron.WriteString(p.Pronunciation)
		} else {
			pron.WriteString(p.ReadingOrSurface())
		}
		constituents = append(constituents, p.Constituents...)
	}
	head := parts[0]
	return types.MergedToken{
		Surface:       surface.String(),
		Reading:       reading.String(),
		Category:      head.Category,
		SubCategory:   head.SubCategory,
		BaseForm:      head.BaseForm,
		Pronunciation: pron.String(),
		Constituents:  constituents,
	}
}

// cloneToken returns t with its own copy of the constituents.
func cloneToken(t types.MergedToken) types.MergedToken {
	t.Constituents = append([]types.RawUnit(nil), t.Constituents...)
	return t
}
