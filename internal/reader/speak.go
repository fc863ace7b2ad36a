package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/bookparser/internal/align"
	"github.com/MrWong99/bookparser/internal/observe"
	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
	"go.opentelemetry.io/otel/codes"
)

// SpeechRequest is the input to [Processor.Speak].
type SpeechRequest struct {
	// Text is the sentence to speak. It may be empty when Tokens is set.
	Text string

	// Tokens are the merged tokens to highlight. When nil, Text is analysed
	// and merged first.
	Tokens []types.MergedToken

	// Voice, Speed and Volume fall back to the processor's speech defaults.
	Voice  types.VoiceProfile
	Speed  float64
	Volume float64
}

// Playback is synthesised speech with its highlight schedule.
type Playback struct {
	Speech    *tts.Speech
	Tokens    []types.MergedToken
	Alignment align.Result
}

// Speak synthesises a sentence and aligns the speech timings onto its tokens.
// A synthesis failure is returned as an error; missing or unusable timings
// are not, and yield the even-distribution schedule instead.
func (p *Processor) Speak(ctx context.Context, req SpeechRequest) (*Playback, error) {
	if p.tts == nil {
		return nil, ErrSpeechUnavailable
	}
	ctx, span := observe.StartSpan(ctx, "reader.Speak")
	defer span.End()

	tokens := req.Tokens
	if tokens == nil {
		var err error
		if tokens, err = p.Tokenize(ctx, req.Text); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	text := types.Text(tokens)
	if text == "" {
		return nil, ErrEmptySentence
	}

	treq := tts.Request{Text: text, Voice: req.Voice, Speed: req.Speed, Volume: req.Volume}
	if treq.Voice.ID == "" {
		treq.Voice = p.speech.Voice
	}
	if treq.Speed <= 0 {
		treq.Speed = p.speech.Speed
	}
	if treq.Volume <= 0 {
		treq.Volume = p.speech.Volume
	}

	start := time.Now()
	speech, err := p.tts.Synthesize(ctx, treq)
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil && (speech == nil || len(speech.Audio) == 0) {
		err = errors.New("no audio returned")
	}
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", kindSynthesize)
		p.metrics.RecordProviderRequest(ctx, "tts", kindSynthesize, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reader: synthesize: %w", err)
	}
	p.metrics.RecordProviderRequest(ctx, "tts", kindSynthesize, "ok")

	res := p.aligner.Align(tokens, speech.Timings, speech.Duration)
	p.metrics.RecordAlignment(ctx, res.Gaps, res.Fallback)
	if res.Fallback {
		observe.Logger(ctx).Warn("reader: no usable speech timings, using even distribution",
			"units", len(speech.Timings), "dropped", res.Dropped)
	}
	if speech.Duration <= 0 {
		speech.Duration = res.Duration
	}
	return &Playback{Speech: speech, Tokens: tokens, Alignment: res}, nil
}

// Voices lists the voices of the configured speech engine.
func (p *Processor) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	if p.tts == nil {
		return nil, ErrSpeechUnavailable
	}
	voices, err := p.tts.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("reader: list voices: %w", err)
	}
	return voices, nil
}
