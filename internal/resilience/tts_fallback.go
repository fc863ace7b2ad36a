package resilience

import (
	"context"

	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over across several speech
// engines.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a TTSFallback with primary as the preferred engine.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another engine.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders req with the first healthy engine. Voice IDs are engine
// specific, so a fallback engine may reject or ignore req.Voice.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Speech, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices returns the voices of the first healthy engine.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Status reports the breaker state of every engine.
func (f *TTSFallback) Status() []EntryStatus {
	return f.group.Status()
}
