package reader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/bookparser/internal/reader"
	"github.com/MrWong99/bookparser/pkg/provider/tts"
	ttsmock "github.com/MrWong99/bookparser/pkg/provider/tts/mock"
	"github.com/MrWong99/bookparser/pkg/types"
)

func TestSpeak_NotConfigured(t *testing.T) {
	t.Parallel()

	p := newFixture(t).processor(t)
	if p.CanSpeak() {
		t.Error("CanSpeak = true without a TTS provider")
	}
	if _, err := p.Speak(context.Background(), reader.SpeechRequest{Text: "猫"}); !errors.Is(err, reader.ErrSpeechUnavailable) {
		t.Errorf("err = %v, want ErrSpeechUnavailable", err)
	}
}

func TestSpeak_AlignsTimings(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	engine := &ttsmock.Provider{SynthesizeResult: &tts.Speech{
		Audio:    []byte("RIFF"),
		Format:   "wav",
		Duration: 1.0,
		Timings: []types.TimingUnit{
			{Start: 0, End: 0.2, Text: "猫", TextStart: 0, TextEnd: 1, HasOffsets: true},
			{Start: 0.2, End: 0.3, Text: "が", TextStart: 1, TextEnd: 2, HasOffsets: true},
			{Start: 0.3, End: 0.8, Text: "食べた", TextStart: 2, TextEnd: 5, HasOffsets: true},
		},
	}}
	p := f.processor(t,
		reader.WithSpeech(engine),
		reader.WithSpeechDefaults(reader.SpeechDefaults{Voice: types.VoiceProfile{ID: "3"}, Speed: 1.2, Volume: 1}),
	)

	pb, err := p.Speak(context.Background(), reader.SpeechRequest{Text: "猫が食べた。"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(pb.Tokens) != 4 {
		t.Fatalf("Tokens = %d, want 4", len(pb.Tokens))
	}
	res := pb.Alignment
	if res.Fallback || res.Gaps != 0 {
		t.Errorf("Fallback=%v Gaps=%d", res.Fallback, res.Gaps)
	}
	if len(res.Timings) != 3 {
		t.Fatalf("Timings = %+v, want one per non-punctuation token", res.Timings)
	}
	verb := res.Timings[2]
	if verb.TokenIndex != 2 || verb.Start != 0.3 || verb.End != 0.8 {
		t.Errorf("verb timing = %+v", verb)
	}

	req := engine.SynthesizeCalls[0].Req
	if req.Text != "猫が食べた。" || req.Voice.ID != "3" || req.Speed != 1.2 || req.Volume != 1 {
		t.Errorf("tts request = %+v, want defaults applied", req)
	}
	if got := f.counter(t, "bookparser.provider.requests", "provider", "tts"); got != 1 {
		t.Errorf("tts requests = %d", got)
	}
}

func TestSpeak_RequestOverridesDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	engine := &ttsmock.Provider{SynthesizeResult: &tts.Speech{Audio: []byte{1}, Duration: 2}}
	p := f.processor(t,
		reader.WithSpeech(engine),
		reader.WithSpeechDefaults(reader.SpeechDefaults{Voice: types.VoiceProfile{ID: "3"}, Speed: 1}),
	)

	tokens := []types.MergedToken{
		types.FromRaw(types.RawUnit{Surface: "猫", Category: types.CategoryNoun}),
		types.FromRaw(types.RawUnit{Surface: "だ", Category: types.CategoryAuxiliaryVerb}),
	}
	pb, err := p.Speak(context.Background(), reader.SpeechRequest{
		Tokens: tokens,
		Voice:  types.VoiceProfile{ID: "8"},
		Speed:  0.8,
	})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if f.analyzer.CallCount() != 0 {
		t.Error("analyzer called although tokens were given")
	}
	req := engine.SynthesizeCalls[0].Req
	if req.Voice.ID != "8" || req.Speed != 0.8 {
		t.Errorf("tts request = %+v", req)
	}

	// No timings: even distribution over the audio length.
	if !pb.Alignment.Fallback || len(pb.Alignment.Timings) != 2 {
		t.Fatalf("alignment = %+v", pb.Alignment)
	}
	if pb.Alignment.Timings[1].End != 2 {
		t.Errorf("last end = %v, want 2", pb.Alignment.Timings[1].End)
	}
	if got := f.counter(t, "bookparser.alignment.fallbacks", "", ""); got != 1 {
		t.Errorf("fallbacks = %d, want 1", got)
	}
}

func TestSpeak_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		engine *ttsmock.Provider
	}{
		{"provider error", &ttsmock.Provider{SynthesizeErr: errors.New("engine down")}},
		{"empty audio", &ttsmock.Provider{SynthesizeResult: &tts.Speech{}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			p := f.processor(t, reader.WithSpeech(tc.engine))
			if _, err := p.Speak(context.Background(), reader.SpeechRequest{Text: "猫が食べた。"}); err == nil {
				t.Fatal("Speak succeeded")
			}
			if got := f.counter(t, "bookparser.provider.errors", "provider", "tts"); got != 1 {
				t.Errorf("tts errors = %d, want 1", got)
			}
		})
	}
}

func TestSpeak_EmptyText(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.processor(t, reader.WithSpeech(&ttsmock.Provider{}))
	if _, err := p.Speak(context.Background(), reader.SpeechRequest{Text: " "}); !errors.Is(err, reader.ErrEmptySentence) {
		t.Errorf("err = %v, want ErrEmptySentence", err)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.processor(t).Voices(context.Background()); !errors.Is(err, reader.ErrSpeechUnavailable) {
		t.Errorf("err = %v, want ErrSpeechUnavailable", err)
	}

	engine := &ttsmock.Provider{ListVoicesResult: []types.VoiceProfile{{ID: "1", Name: "Zundamon"}}}
	voices, err := f.processor(t, reader.WithSpeech(engine)).Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 || voices[0].Name != "Zundamon" {
		t.Errorf("voices = %+v", voices)
	}

	engine = &ttsmock.Provider{ListVoicesErr: errors.New("engine not running")}
	if _, err := f.processor(t, reader.WithSpeech(engine)).Voices(context.Background()); err == nil {
		t.Error("Voices succeeded with a failing engine")
	}
}
