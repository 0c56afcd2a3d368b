// Package orchestrator implements the inference orchestrator: the
// end-to-end Transcribe pipeline wiring decode, resample, the VAD gate,
// decoder-state acquisition, the model run, and the per-segment
// post-processing (hallucination filter, prosody, speaker clustering)
// before the decoder state is released.
package orchestrator

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/aldermoor/vocalis/internal/decode"
	"github.com/aldermoor/vocalis/internal/pool"
	"github.com/aldermoor/vocalis/internal/prosody"
	"github.com/aldermoor/vocalis/internal/resample"
	"github.com/aldermoor/vocalis/internal/speaker"
	"github.com/aldermoor/vocalis/pkg/model"
	"github.com/aldermoor/vocalis/pkg/options"
	"github.com/aldermoor/vocalis/pkg/vad"
)

// modelSampleRate is the fixed rate the acoustic model, VAD, and prosody
// extractor all require.
const modelSampleRate = 16000

// hallucinationProbabilityFloor: a segment with at least one valid token and
// an average probability below this is discarded before it ever reaches a
// protocol surface.
const hallucinationProbabilityFloor = 0.40

// minProsodySamples is the shortest segment the prosody extractor will
// analyze; shorter sub-views use default tags instead.
const minProsodySamples = 160

// Transcoder decodes a non-RIFF/WAVE payload into raw mono 16-bit PCM at
// 16kHz. pkg/transcoder implements this against an external subprocess.
type Transcoder interface {
	Transcode(ctx context.Context, payload []byte) ([]byte, error)
}

// Metrics is the narrow set of instruments Transcribe reports to, if
// configured. internal/observe implements this against OpenTelemetry.
type Metrics interface {
	ObservePoolWait(d time.Duration)
	IncSegmentsProcessed(n int)
	IncHallucinationRejected()
	IncDecodeFailure()
}

// Orchestrator ties every core collaborator together behind one Transcribe
// call. It is safe for concurrent use: requests block on the decoder-state
// pool, and the VAD gate serializes its own detection calls.
type Orchestrator struct {
	pool             *pool.Pool[model.State]
	vadGate          *vad.Gate
	transcoder       Transcoder
	defaults         *options.Defaults
	clusterThreshold float64
	logger           *slog.Logger
	metrics          Metrics
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithTranscoder sets the collaborator used to decode non-RIFF/WAVE
// payloads. Without one, such payloads fall back to the raw-PCM assumption
// directly.
func WithTranscoder(t Transcoder) Option {
	return func(o *Orchestrator) { o.transcoder = t }
}

// WithLogger overrides the default slog.Logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics attaches an instrument sink. Without one, metrics calls are
// skipped entirely.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClusterThreshold overrides the per-request speaker clusterer's cosine
// similarity threshold (default speaker.DefaultThreshold).
func WithClusterThreshold(threshold float64) Option {
	return func(o *Orchestrator) { o.clusterThreshold = threshold }
}

// New creates an Orchestrator backed by statePool and vadGate,
// resolving request options against defaults.
func New(statePool *pool.Pool[model.State], vadGate *vad.Gate, defaults *options.Defaults, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:             statePool,
		vadGate:          vadGate,
		defaults:         defaults,
		clusterThreshold: speaker.DefaultThreshold,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Word is one token-level timing/probability record, surfaced to callers as
// the wire protocol's "words" array.
type Word struct {
	Text        string
	StartSec    float64
	EndSec      float64
	Probability float64
}

// Segment is one post-processed model segment, enriched with affective tags
// and a speaker cluster id.
type Segment struct {
	Text            string
	Language        string
	StartSec        float64
	EndSec          float64
	Probability     float64
	SpeakerTurnNext bool
	SpeakerID       string
	Affective       prosody.AffectiveTags
	Words           []Word
}

// Result is everything Transcribe returns for one call, protocol framing
// aside.
type Result struct {
	Language        string
	DurationSec     float64
	Segments        []Segment
	InputSampleRate int
	InputChannels   int
}

// Transcribe runs the full pipeline over payload and returns the enriched
// segment sequence. req carries any per-call overrides; unset sentinel
// fields inherit o's server defaults.
//
// If ctx is already done, Transcribe returns ctx.Err() without decoding
// audio, acquiring a decoder state, or touching the pool. Cancellation
// during the model call itself is not honored — the call is atomic from
// this package's point of view — but the state is still released after.
func (o *Orchestrator) Transcribe(ctx context.Context, payload []byte, req options.Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	resolved := o.defaults.Resolve(req)

	audio, inputSR, inputCh, err := o.decodeInput(ctx, payload)
	if err != nil {
		if o.metrics != nil {
			o.metrics.IncDecodeFailure()
		}
		return Result{}, fmt.Errorf("orchestrator: decode: %w", err)
	}

	pcm16 := bytesToInt16(audio)
	if inputSR != modelSampleRate {
		pcm16 = resample.Mono(pcm16, inputSR, modelSampleRate)
	}
	pcmF32 := int16ToFloat32(pcm16)
	durationSec := float64(len(pcmF32)) / modelSampleRate

	hasSpeech, err := o.vadGate.HasSpeech(ctx, pcmF32, modelSampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: vad: %w", err)
	}
	if !hasSpeech {
		return Result{
			Language:        "unknown",
			DurationSec:     durationSec,
			InputSampleRate: inputSR,
			InputChannels:   inputCh,
			Segments: []Segment{{
				Text:      "",
				Language:  "unknown",
				StartSec:  0,
				EndSec:    durationSec,
				SpeakerID: "unknown",
				Affective: defaultAffective(),
			}},
		}, nil
	}

	waitStart := time.Now()
	borrowed, err := o.pool.Acquire(ctx)
	if o.metrics != nil {
		o.metrics.ObservePoolWait(time.Since(waitStart))
	}
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: acquire decoder state: %w", err)
	}
	defer borrowed.Release()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	params := toModelParams(resolved)
	modelSegments, err := borrowed.State().Run(ctx, params, pcmF32)
	if err != nil {
		o.logger.Error("model run failed", "error", err)
		return Result{
			Language:        resolved.Language,
			DurationSec:     durationSec,
			InputSampleRate: inputSR,
			InputChannels:   inputCh,
		}, nil
	}

	clusterer := speaker.New(o.clusterThreshold)
	segments := make([]Segment, 0, len(modelSegments))
	for _, ms := range modelSegments {
		avgProb, validTokens := avgTokenProbability(ms.Tokens)
		if validTokens > 0 && avgProb < hallucinationProbabilityFloor {
			if o.metrics != nil {
				o.metrics.IncHallucinationRejected()
			}
			continue
		}

		seg := Segment{
			Text:            ms.Text,
			Language:        ms.Language,
			StartSec:        float64(ms.StartCS) / 100,
			EndSec:          float64(ms.EndCS) / 100,
			Probability:     avgProb,
			SpeakerTurnNext: ms.SpeakerTurnNext,
			Affective:       defaultAffective(),
			SpeakerID:       "unknown",
		}
		for _, tk := range ms.Tokens {
			seg.Words = append(seg.Words, Word{
				Text:        tk.Text,
				StartSec:    float64(tk.StartCS) / 100,
				EndSec:      float64(tk.EndCS) / 100,
				Probability: tk.Probability,
			})
		}

		if resolved.EnableProsody {
			sub := sliceSamples(pcmF32, ms.StartCS, ms.EndCS)
			if len(sub) >= minProsodySamples {
				prosodyOpts := prosody.Options{
					MinPitchHz:        resolved.MinPitchHz,
					MaxPitchHz:        resolved.MaxPitchHz,
					LPFAlpha:          resolved.LPFAlpha,
					GenderThresholdHz: resolved.GenderThresholdHz,
					ValenceBias:       resolved.ValenceBias,
				}
				seg.Affective = prosody.Extract(sub, modelSampleRate, prosodyOpts)
				seg.SpeakerID = clusterer.AssignOrAdd(seg.Affective.SpeakerVec)
			}
		}

		segments = append(segments, seg)
	}
	if o.metrics != nil {
		o.metrics.IncSegmentsProcessed(len(segments))
	}

	return Result{
		Language:        resolved.Language,
		DurationSec:     durationSec,
		Segments:        segments,
		InputSampleRate: inputSR,
		InputChannels:   inputCh,
	}, nil
}

// decodeInput returns mono 16-bit LE PCM bytes plus the sample rate and
// original channel count the audio arrived at. RIFF/WAVE parses directly;
// anything else goes to the transcoder, falling back to the
// raw-PCM-at-16kHz assumption if transcoding is unavailable or fails.
func (o *Orchestrator) decodeInput(ctx context.Context, payload []byte) (pcm []byte, sampleRate, channels int, err error) {
	if decode.IsRIFFWAVE(payload) {
		audio, err := decode.Decode(payload)
		if err != nil {
			return nil, 0, 0, err
		}
		for _, w := range audio.Warnings {
			o.logger.Warn("container self-healed", "detail", w)
		}
		return audio.PCM, audio.SampleRate, audio.OrigChannels, nil
	}

	if o.transcoder != nil {
		pcm, err := o.transcoder.Transcode(ctx, payload)
		if err == nil {
			return pcm, modelSampleRate, 1, nil
		}
		o.logger.Warn("external transcode failed, falling back to raw PCM assumption", "error", err)
	}
	return payload, modelSampleRate, 1, nil
}

func toModelParams(r options.Resolved) model.Params {
	return model.Params{
		Language:          r.Language,
		InitialPrompt:     r.InitialPrompt,
		Translate:         r.Translate,
		EnableDiarization: r.Diarization,
		Temperature:       r.Temperature,
		BeamSize:          r.BeamSize,
		BestOf:            r.BestOf,
		NThreads:          r.NThreads,
		NoSpeechThreshold: r.NoSpeechThreshold,
		LogprobThreshold:  r.LogprobThreshold,
		EntropyThreshold:  r.EntropyThreshold,
	}
}

// avgTokenProbability returns the arithmetic mean probability over tokens
// and the count considered. pkg/model implementations exclude special
// tokens at or beyond the end-of-transcription marker before building the
// token records, so every token reaching here is already valid.
func avgTokenProbability(tokens []model.Token) (avg float64, n int) {
	if len(tokens) == 0 {
		return 0, 0
	}
	var sum float64
	for _, tk := range tokens {
		sum += tk.Probability
	}
	return sum / float64(len(tokens)), len(tokens)
}

// sliceSamples maps a segment's centisecond bounds to a sample-index view
// over pcm at 16kHz, clamped into range with no copy.
func sliceSamples(pcm []float32, startCS, endCS int) []float32 {
	start := startCS * modelSampleRate / 100
	end := endCS * modelSampleRate / 100
	if start < 0 {
		start = 0
	}
	if start > len(pcm) {
		start = len(pcm)
	}
	if end > len(pcm) {
		end = len(pcm)
	}
	if end < start {
		end = start
	}
	return pcm[start:end]
}

func defaultAffective() prosody.AffectiveTags {
	return prosody.DefaultTags()
}

// bytesToInt16 reinterprets little-endian 16-bit PCM bytes as samples,
// ignoring a trailing odd byte.
func bytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return out
}

// int16ToFloat32 normalizes signed 16-bit samples to [-1.0, 1.0].
func int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
