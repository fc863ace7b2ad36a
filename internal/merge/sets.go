package merge

type set map[string]struct{}

func newSet(words ...string) set {
	s := make(set, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s set) has(w string) bool {
	_, ok := s[w]
	return ok
}

var (
	// inflectionEndings are surfaces that conjugate or extend a verb: tense,
	// negation, politeness, voice, conditional, volitional, copula and
	// evidential endings.
	inflectionEndings = newSet(
		"て", "で", "た", "だ",
		"ない", "なかった", "ぬ", "ず",
		"ます", "ました", "ません", "ませんでした", "ましょう",
		"れる", "られる", "える", "られ",
		"せる", "させる",
		"れば", "ば", "たら", "だら", "なら",
		"う", "よう", "ろう", "ろ", "よ", "れ",
		"である", "です", "でした", "だった", "じゃない", "ではない",
		"いる", "ある", "おる",
		"そう", "らしい", "みたい", "ようだ", "っぽい",
	)

	// auxiliaryPatterns are subsidiary verbs that follow the te-form.
	auxiliaryPatterns = newSet(
		"いる", "ある", "おる", "くる", "いく", "みる", "しまう", "おく",
		"あげる", "くれる", "もらう", "やる", "いただく", "さしあげる",
	)

	// verbParticles may attach to a verb inside a group.
	verbParticles = newSet("て", "で", "た", "だ", "ば", "ても", "でも", "ながら", "つつ")

	// compoundSecondParts start a compound even when not tagged as a verb.
	compoundSecondParts = newSet("込む", "出す", "上げる", "下げる", "回る", "切る")
)
