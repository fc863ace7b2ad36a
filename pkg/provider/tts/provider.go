// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local VOICEVOX
// engine or ElevenLabs) and returns the audio for one sentence together with
// the phonetic timing units the service reports. The timing units feed the
// aligner, which maps them onto merged token boundaries for highlighting.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/bookparser/pkg/types"
)

// Request describes one synthesis call.
type Request struct {
	// Text is the sentence to speak.
	Text string

	// Voice selects the speaker. A zero Voice uses the provider default.
	Voice types.VoiceProfile

	// Speed scales the speaking rate. 0 means the provider default (1.0).
	Speed float64

	// Volume scales the output volume. 0 means the provider default (1.0).
	Volume float64
}

// Speech is the result of a synthesis call.
type Speech struct {
	// Audio is the encoded audio (see Format).
	Audio []byte

	// Format is the container of Audio, e.g. "wav" or "mp3".
	Format string

	// SampleRate is the sample rate of Audio in Hz.
	SampleRate int

	// Duration is the audio length in seconds.
	Duration float64

	// Timings are the phonetic units reported by the service, in playback
	// order. Units without offsets are located in Text by the aligner.
	Timings []types.TimingUnit
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize speaks req.Text and returns the audio with its timing units.
	// A provider that cannot produce any audio returns an error; a provider
	// that produces audio without timing units returns an empty Timings slice.
	Synthesize(ctx context.Context, req Request) (*Speech, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}

// MaxEnd returns the latest End of units, or 0 when units is empty.
func MaxEnd(units []types.TimingUnit) float64 {
	var end float64
	for _, u := range units {
		if u.End > end {
			end = u.End
		}
	}
	return end
}
