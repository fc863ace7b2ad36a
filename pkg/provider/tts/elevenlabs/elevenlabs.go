// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. It implements the tts.Provider
// interface.
//
// The socket returns audio in chunks, each with a per-character alignment
// whose times are relative to the chunk. The provider offsets every chunk's
// alignment by the length of the audio received before it and reports each
// non-space character as a timing unit without text offsets.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
	"github.com/coder/websocket"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	streamPathFmt    = "/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesPath       = "/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000",
// "pcm_24000", "mp3_44100_128"). PCM output is wrapped in a WAV container.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL points the provider at a different API host. The WebSocket URL
// is derived by swapping the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent for the text and the final flush.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// alignment is the per-character timing attached to an audio chunk.
type alignment struct {
	Chars          []string `json:"chars"`
	CharStartTimes []int    `json:"charStartTimesMs"`
	CharDurations  []int    `json:"charDurationsMs"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio               string     `json:"audio"` // base64-encoded
	IsFinal             bool       `json:"isFinal"`
	Alignment           *alignment `json:"alignment"`
	NormalizedAlignment *alignment `json:"normalizedAlignment"`
	Message             string     `json:"message,omitempty"` // error or info
	Error               string     `json:"error,omitempty"`
}

// Synthesize opens a stream-input socket, sends the whole text followed by a
// flush and collects audio and alignment until the final message.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	if req.Voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, buildURLForVoice(p.wsBase(), req.Voice.ID, p.model), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(16 << 20)

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if req.Speed > 0 && req.Speed != 1 {
		vs.Speed = req.Speed
	}
	boi := boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: vs,
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	for _, msg := range []any{boi, textMessage{Text: req.Text + " "}, textMessage{Text: ""}} {
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	c := collector{format: p.outputFormat}
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if c.audio.Len() == 0 {
				return nil, fmt.Errorf("elevenlabs: read: %w", err)
			}
			break
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if err := c.add(resp); err != nil {
			return nil, err
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if c.audio.Len() == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return c.speech(), nil
}

func (p *Provider) wsBase() string {
	switch {
	case strings.HasPrefix(p.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(p.baseURL, "https://")
	case strings.HasPrefix(p.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(p.baseURL, "http://")
	}
	return p.baseURL
}

// collector accumulates audio chunks and offsets their alignments.
type collector struct {
	format  string
	audio   bytes.Buffer
	elapsed float64 // seconds of audio before the current chunk
	timings []types.TimingUnit
}

func (c *collector) add(resp audioResponse) error {
	if resp.Audio == "" {
		return nil
	}
	chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return fmt.Errorf("elevenlabs: decode audio: %w", err)
	}

	al := resp.Alignment
	if al == nil {
		al = resp.NormalizedAlignment
	}
	var chunkEnd float64
	if al != nil {
		n := min(len(al.Chars), len(al.CharStartTimes), len(al.CharDurations))
		for i := range n {
			start := float64(al.CharStartTimes[i]) / 1000
			end := start + float64(al.CharDurations[i])/1000
			chunkEnd = max(chunkEnd, end)
			if strings.TrimFunc(al.Chars[i], unicode.IsSpace) == "" {
				continue
			}
			c.timings = append(c.timings, types.TimingUnit{
				Start: c.elapsed + start,
				End:   c.elapsed + end,
				Text:  al.Chars[i],
			})
		}
	}

	c.audio.Write(chunk)
	if rate := pcmRate(c.format); rate > 0 {
		c.elapsed += float64(len(chunk)/2) / float64(rate)
	} else {
		c.elapsed += chunkEnd
	}
	return nil
}

func (c *collector) speech() *tts.Speech {
	s := &tts.Speech{Timings: c.timings}
	if rate := pcmRate(c.format); rate > 0 {
		s.Audio = tts.EncodeWAV(c.audio.Bytes(), rate, 1)
		s.Format = "wav"
		s.SampleRate = rate
		s.Duration = c.elapsed
		return s
	}
	codec, rest, _ := strings.Cut(c.format, "_")
	s.Audio = c.audio.Bytes()
	s.Format = codec
	s.SampleRate, _ = strconv.Atoi(strings.SplitN(rest, "_", 2)[0])
	s.Duration = max(c.elapsed, tts.MaxEnd(c.timings))
	return s
}

// pcmRate returns the sample rate of a "pcm_<rate>" format, or 0.
func pcmRate(format string) int {
	r, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(r)
	if err != nil {
		return 0
	}
	return n
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

// ---- helpers ----

// buildURLForVoice constructs the WebSocket URL for a given voice and model.
func buildURLForVoice(wsBase, voiceID, model string) string {
	return wsBase + fmt.Sprintf(streamPathFmt, voiceID, model)
}

// parseVoicesResponse parses a raw /v1/voices body into voice profiles.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return toProfiles(vr), nil
}

func toProfiles(vr voicesResponse) []types.VoiceProfile {
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
