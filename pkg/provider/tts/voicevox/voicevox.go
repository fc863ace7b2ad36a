// Package voicevox provides a TTS provider backed by a local VOICEVOX engine
// via its REST API. It implements the tts.Provider interface.
//
// Synthesis is a two-step exchange: POST /audio_query builds a synthesis
// query (accent phrases with per-mora lengths) for the text, and POST
// /synthesis renders that query to WAV. The mora lengths of the query are
// returned as timing units without text offsets, because mora text is
// katakana while the sentence is usually written with kanji; the aligner
// locates them.
//
// Typical usage:
//
//	p, err := voicevox.New("http://localhost:50021",
//	    voicevox.WithDefaultSpeaker("3"),
//	    voicevox.WithTimeout(30*time.Second),
//	)
//	speech, err := p.Synthesize(ctx, tts.Request{Text: "猫が好きです。"})
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/bookparser/pkg/provider/tts"
	"github.com/MrWong99/bookparser/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultSpeaker    = "1"
	defaultSampleRate = 24000
	defaultTimeout    = 30 * time.Second

	audioQueryEndpoint = "/audio_query"
	synthesisEndpoint  = "/synthesis"
	speakersEndpoint   = "/speakers"
)

// Option is a functional option for configuring a VOICEVOX Provider.
type Option func(*Provider)

// WithDefaultSpeaker sets the speaker (style) ID used when a request carries
// no voice. Defaults to "1".
func WithDefaultSpeaker(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.defaultSpeaker = id
		}
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by a VOICEVOX engine.
// It is safe for concurrent use.
type Provider struct {
	serverURL      string
	defaultSpeaker string
	httpClient     *http.Client
}

// New creates a new VOICEVOX Provider that targets the engine at serverURL
// (e.g., "http://localhost:50021"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("voicevox: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:      strings.TrimRight(serverURL, "/"),
		defaultSpeaker: defaultSpeaker,
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- audio query ----

type mora struct {
	Text            string   `json:"text"`
	ConsonantLength *float64 `json:"consonant_length"`
	VowelLength     float64  `json:"vowel_length"`
}

func (m mora) length() float64 {
	l := m.VowelLength
	if m.ConsonantLength != nil {
		l += *m.ConsonantLength
	}
	return l
}

type accentPhrase struct {
	Moras     []mora `json:"moras"`
	PauseMora *mora  `json:"pause_mora"`
}

// audioQuery holds the fields of the engine's query that timing extraction
// needs. The query itself is forwarded to /synthesis as raw JSON so fields
// this package does not model survive the round trip.
type audioQuery struct {
	AccentPhrases      []accentPhrase `json:"accent_phrases"`
	SpeedScale         float64        `json:"speedScale"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error) {
	text := FilterText(req.Text)
	if text == "" {
		return nil, errors.New("voicevox: text is empty after filtering")
	}
	speaker := req.Voice.ID
	if speaker == "" {
		speaker = p.defaultSpeaker
	}

	raw, err := p.fetchQuery(ctx, text, speaker)
	if err != nil {
		return nil, err
	}
	if req.Speed > 0 && req.Speed != 1 {
		raw["speedScale"] = number(req.Speed)
	}
	if req.Volume > 0 && req.Volume != 1 {
		raw["volumeScale"] = number(req.Volume)
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("voicevox: encode audio query: %w", err)
	}
	var q audioQuery
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("voicevox: decode audio query: %w", err)
	}

	wav, err := p.synthesize(ctx, body, speaker)
	if err != nil {
		return nil, err
	}

	timings := extractTimings(q)
	speech := &tts.Speech{
		Audio:      wav,
		Format:     "wav",
		SampleRate: q.OutputSamplingRate,
		Timings:    timings,
	}
	if speech.SampleRate <= 0 {
		speech.SampleRate = defaultSampleRate
	}
	if info, err := tts.ParseWAV(wav); err == nil {
		speech.SampleRate = info.SampleRate
		speech.Duration = info.Duration()
	} else {
		slog.Warn("voicevox: unreadable WAV, using timing units for duration", "err", err)
		speech.Duration = tts.MaxEnd(timings)
	}
	return speech, nil
}

func (p *Provider) fetchQuery(ctx context.Context, text, speaker string) (map[string]json.RawMessage, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", speaker)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+audioQueryEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create audio query request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", audioQueryEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", audioQueryEndpoint, resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("voicevox: decode audio query: %w", err)
	}
	if raw == nil {
		return nil, errors.New("voicevox: empty audio query")
	}
	return raw, nil
}

func (p *Provider) synthesize(ctx context.Context, query []byte, speaker string) ([]byte, error) {
	params := url.Values{}
	params.Set("speaker", speaker)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesisEndpoint+"?"+params.Encode(), bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("voicevox: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", synthesisEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", synthesisEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read WAV response: %w", err)
	}
	if len(wav) == 0 {
		return nil, errors.New("voicevox: empty WAV response")
	}
	return wav, nil
}

// extractTimings converts the moras of q into timing units. The clock starts
// after the leading silence, pause moras advance it without emitting a unit,
// and every time is divided by the query's speed scale.
func extractTimings(q audioQuery) []types.TimingUnit {
	speed := q.SpeedScale
	if speed <= 0 {
		speed = 1
	}
	var units []types.TimingUnit
	clock := q.PrePhonemeLength
	for _, phrase := range q.AccentPhrases {
		for _, m := range phrase.Moras {
			l := m.length()
			if l > 0 && m.Text != "" {
				units = append(units, types.TimingUnit{
					Start: clock / speed,
					End:   (clock + l) / speed,
					Text:  m.Text,
				})
			}
			clock += l
		}
		if phrase.PauseMora != nil {
			clock += phrase.PauseMora.length()
		}
	}
	return units
}

// FilterText prepares text for the engine: middle dots are dropped, the
// ellipsis, wave dash and horizontal bar are normalised, and whitespace runs
// collapse to one space.
func FilterText(text string) string {
	text = filterReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

var filterReplacer = strings.NewReplacer(
	"・", "",
	"…", "...",
	"〜", "～",
	"―", "—",
)

func number(f float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64))
}

// ---- ListVoices ----

type speaker struct {
	Name        string `json:"name"`
	SpeakerUUID string `json:"speaker_uuid"`
	Styles      []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	} `json:"styles"`
}

// ListVoices returns one VoiceProfile per speaker style, identified by the
// style ID the synthesis endpoints expect.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+speakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: GET %s: %w", speakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: GET %s returned status %d", speakersEndpoint, resp.StatusCode)
	}

	var speakers []speaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("voicevox: decode speakers: %w", err)
	}

	var profiles []types.VoiceProfile
	for _, s := range speakers {
		for _, st := range s.Styles {
			profiles = append(profiles, types.VoiceProfile{
				ID:       strconv.Itoa(st.ID),
				Name:     fmt.Sprintf("%s (%s)", s.Name, st.Name),
				Provider: "voicevox",
				Metadata: map[string]string{
					"speaker_uuid": s.SpeakerUUID,
					"style":        st.Name,
				},
			})
		}
	}
	return profiles, nil
}
