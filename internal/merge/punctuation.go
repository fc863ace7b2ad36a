package merge

import (
	"strings"

	"github.com/MrWong99/bookparser/pkg/types"
)

// CoalescePunctuation replaces every run of two or more consecutive
// punctuation tokens by a single merged-punctuation token. Single punctuation
// tokens and everything else pass through unchanged. The function is
// idempotent.
func CoalescePunctuation(tokens []types.MergedToken) []types.MergedToken {
	out := make([]types.MergedToken, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if !tokens[i].IsPunctuation() {
			out = append(out, cloneToken(tokens[i]))
			i++
			continue
		}
		j := i + 1
		for j < len(tokens) && tokens[j].IsPunctuation() {
			j++
		}
		if j-i == 1 {
			out = append(out, cloneToken(tokens[i]))
		} else {
			out = append(out, coalesce(tokens[i:j]))
		}
		i = j
	}
	return out
}

func coalesce(run []types.MergedToken) types.MergedToken {
	t := combine(run)
	var base strings.Builder
	for _, p := range run {
		if p.BaseForm != "" {
			base.WriteString(p.BaseForm)
		} else {
			base.WriteString(p.Surface)
		}
	}
	t.BaseForm = base.String()
	t.Category = types.CategoryPunctuation
	t.Detail = types.DetailMergedPunctuation
	t.MergeReason = types.ReasonPunctuationSequence
	return t
}
