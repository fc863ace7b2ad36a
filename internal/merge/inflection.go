package merge

import "github.com/MrWong99/bookparser/pkg/types"

// rule is one entry of the continuation chain.
type rule struct {
	enabled func(Config) bool
	match   func(next, head types.MergedToken) bool
}

func always(Config) bool { return true }

// rules is tested in order; category checks come before the particle checks.
var rules = []rule{
	{
		enabled: func(c Config) bool { return c.MergeAuxiliaryVerbs },
		match: func(next, _ types.MergedToken) bool {
			return next.Category == types.CategoryAuxiliaryVerb
		},
	},
	{
		enabled: func(c Config) bool { return c.MergeVerbSuffixes },
		match: func(next, _ types.MergedToken) bool {
			return next.Category == types.CategoryVerb && next.SubCategory == types.SubSuffix
		},
	},
	{
		enabled: func(c Config) bool { return c.MergeAllInflections },
		match: func(next, _ types.MergedToken) bool {
			return inflectionEndings.has(next.Surface)
		},
	},
	{
		enabled: func(c Config) bool { return c.MergeAuxiliaryVerbs },
		match: func(next, _ types.MergedToken) bool {
			return auxiliaryPatterns.has(next.Surface)
		},
	},
	{
		enabled: func(c Config) bool { return c.MergeVerbParticles },
		match: func(next, _ types.MergedToken) bool {
			return next.Category == types.CategoryParticle && verbParticles.has(next.Surface)
		},
	},
	{
		enabled: always,
		match: func(next, _ types.MergedToken) bool {
			return next.Category == types.CategoryVerb && next.SubCategory != types.SubIndependent
		},
	},
	{
		enabled: always,
		match: func(next, _ types.MergedToken) bool {
			switch next.SubCategory {
			case types.SubConnectiveParticle, types.SubCaseParticle:
				return verbParticles.has(next.Surface)
			}
			return false
		},
	},
}

// continues reports whether next extends the group started by head.
func continues(cfg Config, next, head types.MergedToken) bool {
	for _, r := range rules {
		if r.enabled(cfg) && r.match(next, head) {
			return true
		}
	}
	for _, p := range cfg.CustomPredicates {
		if p(next, head) {
			return true
		}
	}
	return false
}

// MergeInflections folds every verb and its continuations into one inflected
// token. A group grows greedily and stops at the first token no active rule
// accepts; that token is never reconsidered for the same group.
func MergeInflections(tokens []types.MergedToken, cfg Config) []types.MergedToken {
	out := make([]types.MergedToken, 0, len(tokens))
	for i := 0; i < len(tokens); {
		head := tokens[i]
		if head.Category != types.CategoryVerb {
			out = append(out, cloneToken(head))
			i++
			continue
		}
		j := i + 1
		for j < len(tokens) && continues(cfg, tokens[j], head) {
			j++
		}
		if j-i == 1 {
			out = append(out, cloneToken(head))
			i++
			continue
		}
		t := combine(tokens[i:j])
		t.Category = types.CategoryVerb
		t.Detail = types.DetailInflected
		t.MergeReason = types.ReasonVerbInflection
		t.InflectionCount = j - i - 1
		out = append(out, t)
		i = j
	}
	return out
}
