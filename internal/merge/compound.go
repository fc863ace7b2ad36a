package merge

import "github.com/MrWong99/bookparser/pkg/types"

// DetectCompounds merges a verb with an immediately following verb or
// compound-forming suffix (込む, 出す, ...). It looks one token ahead only and
// never re-examines its own output, so 書き+込み+始める yields one compound
// followed by 始める.
func DetectCompounds(tokens []types.MergedToken) []types.MergedToken {
	out := make([]types.MergedToken, 0, len(tokens))
	for i := 0; i < len(tokens); {
		cur := tokens[i]
		if i+1 < len(tokens) && isCompoundPair(cur, tokens[i+1]) {
			out = append(out, compound(cur, tokens[i+1]))
			i += 2
			continue
		}
		out = append(out, cloneToken(cur))
		i++
	}
	return out
}

func isCompoundPair(cur, next types.MergedToken) bool {
	if cur.Category != types.CategoryVerb {
		return false
	}
	return next.Category == types.CategoryVerb || compoundSecondParts.has(next.Surface)
}

func compound(head, next types.MergedToken) types.MergedToken {
	t := combine([]types.MergedToken{head, next})
	// The head is in its continuative form; the dictionary form of the
	// compound is that stem followed by the dictionary form of the second verb.
	second := next.BaseForm
	if second == "" {
		second = next.Surface
	}
	t.BaseForm = head.Surface + second
	t.Category = types.CategoryVerb
	t.Detail = types.DetailCompound
	t.MergeReason = types.ReasonCompoundVerb
	return t
}
