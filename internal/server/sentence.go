package server

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/MrWong99/bookparser/internal/enrich"
	"github.com/MrWong99/bookparser/internal/merge"
	"github.com/MrWong99/bookparser/internal/reader"
	"github.com/MrWong99/bookparser/pkg/kana"
	"github.com/MrWong99/bookparser/pkg/types"
)

// mergeOptions is the wire form of merge.Config. Omitted toggles keep the
// configured value.
type mergeOptions struct {
	MergeAuxiliaryVerbs  *bool `json:"mergeAuxiliaryVerbs"`
	MergeVerbParticles   *bool `json:"mergeVerbParticles"`
	MergeVerbSuffixes    *bool `json:"mergeVerbSuffixes"`
	MergeAllInflections  *bool `json:"mergeAllInflections"`
	MergePunctuation     *bool `json:"mergePunctuation"`
	UseCompoundDetection *bool `json:"useCompoundDetection"`
}

// apply returns base with the set toggles overridden, or nil when o is nil.
func (o *mergeOptions) apply(base merge.Config) *merge.Config {
	if o == nil {
		return nil
	}
	cfg := base
	override(&cfg.MergeAuxiliaryVerbs, o.MergeAuxiliaryVerbs)
	override(&cfg.MergeVerbParticles, o.MergeVerbParticles)
	override(&cfg.MergeVerbSuffixes, o.MergeVerbSuffixes)
	override(&cfg.MergeAllInflections, o.MergeAllInflections)
	override(&cfg.MergePunctuation, o.MergePunctuation)
	override(&cfg.UseCompoundDetection, o.UseCompoundDetection)
	return &cfg
}

func override(dst, src *bool) {
	if src != nil {
		*dst = *src
	}
}

type parseRequest struct {
	Text          string        `json:"text"`
	SentenceIndex int           `json:"sentenceIndex"`
	AllSentences  []string      `json:"allSentences"`
	MergeOptions  *mergeOptions `json:"mergeOptions"`

	// VerbMergeOptions is accepted from older clients when MergeOptions is
	// absent.
	VerbMergeOptions *mergeOptions `json:"verbMergeOptions"`

	// UseRemoteProcessing defaults to true.
	UseRemoteProcessing *bool `json:"useRemoteProcessing"`
}

// tokenView adds the hiragana reading shown above each token.
type tokenView struct {
	types.EnrichedToken
	Hiragana string `json:"hiragana"`
}

type analysisView struct {
	reader.Analysis
	Tokens []tokenView `json:"tokens"`
}

type parseResponse struct {
	*reader.SentenceResult
	Analysis analysisView `json:"analysis"`
}

func newParseResponse(res *reader.SentenceResult) parseResponse {
	views := make([]tokenView, len(res.Analysis.Tokens))
	for i, t := range res.Analysis.Tokens {
		views[i] = tokenView{EnrichedToken: t, Hiragana: kana.ToHiragana(t.ReadingOrSurface())}
	}
	return parseResponse{
		SentenceResult: res,
		Analysis:       analysisView{Analysis: res.Analysis, Tokens: views},
	}
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := s.Pipeline()

	opts := req.MergeOptions
	if opts == nil {
		opts = req.VerbMergeOptions
	}
	mode := p.Mode
	if req.UseRemoteProcessing != nil && !*req.UseRemoteProcessing {
		mode = enrich.ModeLocal
	}

	sr := reader.SentenceRequest{
		Text:  req.Text,
		Index: req.SentenceIndex,
		Mode:  mode,
		Merge: opts.apply(p.Merge),
	}
	if i := req.SentenceIndex; i > 0 && i-1 < len(req.AllSentences) {
		sr.Previous = req.AllSentences[i-1]
	}
	if i := req.SentenceIndex; i >= 0 && i+1 < len(req.AllSentences) {
		sr.Next = req.AllSentences[i+1]
	}

	res, err := p.Processor.Process(r.Context(), sr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParseResponse(res))
}

type speechRequest struct {
	Text   string              `json:"text"`
	Tokens []types.MergedToken `json:"tokens"`
	Voice  string              `json:"voice"`
	Speed  float64             `json:"speed"`
	Volume float64             `json:"volume"`
}

type speechResponse struct {
	Audio        string              `json:"audio"`
	AudioFormat  string              `json:"audioFormat"`
	SampleRate   int                 `json:"sampleRate"`
	Duration     float64             `json:"duration"`
	Timings      []types.TimingUnit  `json:"timings"`
	TokenTimings []types.TokenTiming `json:"tokenTimings"`
	Tokens       []types.MergedToken `json:"tokens"`
	Gaps         int                 `json:"gaps"`
	Fallback     bool                `json:"fallback"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Speed < 0 || req.Volume < 0 {
		writeError(w, r, badRequest("speed and volume must not be negative"))
		return
	}

	pb, err := s.Pipeline().Processor.Speak(r.Context(), reader.SpeechRequest{
		Text:   req.Text,
		Tokens: req.Tokens,
		Voice:  types.VoiceProfile{ID: req.Voice},
		Speed:  req.Speed,
		Volume: req.Volume,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			// The engine is down or returned nothing; the text itself is fine.
			err = fmt.Errorf("%w: %w", errSpeechFailed, err)
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, speechResponse{
		Audio:        base64.StdEncoding.EncodeToString(pb.Speech.Audio),
		AudioFormat:  pb.Speech.Format,
		SampleRate:   pb.Speech.SampleRate,
		Duration:     pb.Speech.Duration,
		Timings:      nonNil(pb.Alignment.Units),
		TokenTimings: nonNil(pb.Alignment.Timings),
		Tokens:       pb.Tokens,
		Gaps:         pb.Alignment.Gaps,
		Fallback:     pb.Alignment.Fallback,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.Pipeline().Processor.Voices(r.Context())
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", errSpeechFailed, err)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(voices))
}

// nonNil keeps empty lists as [] rather than null in responses.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
