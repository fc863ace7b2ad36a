package kana

import "testing"

func TestToHiragana(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"タベル", "たべる"},
		{"ヴァイオリン", "ゔぁいおりん"},
		{"コーヒー", "こーひー"},
		{"漢字とカナ", "漢字とかな"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := ToHiragana(tc.in); got != tc.want {
			t.Errorf("ToHiragana(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToKatakanaRoundTrip(t *testing.T) {
	t.Parallel()

	const s = "たべました"
	if got := ToHiragana(ToKatakana(s)); got != s {
		t.Errorf("round trip = %q, want %q", got, s)
	}
	if got := ToKatakana(s); got != "タベマシタ" {
		t.Errorf("ToKatakana(%q) = %q", s, got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
	}{
		{"ｶﾀｶﾅ", "かたかな"},
		{"タ", "た"},
		{"ＡＢＣ", "abc"},
	}
	for _, tc := range tests {
		if !Equal(tc.a, tc.b) {
			t.Errorf("Equal(%q, %q) = false, Normalize gives %q and %q", tc.a, tc.b, Normalize(tc.a), Normalize(tc.b))
		}
	}
	if Equal("た", "だ") {
		t.Error("voiced and unvoiced kana should differ")
	}
}

func TestIsKana(t *testing.T) {
	t.Parallel()

	for _, r := range "あアー" {
		if !IsKana(r) {
			t.Errorf("IsKana(%q) = false", r)
		}
	}
	for _, r := range "漢a。" {
		if IsKana(r) {
			t.Errorf("IsKana(%q) = true", r)
		}
	}
}
