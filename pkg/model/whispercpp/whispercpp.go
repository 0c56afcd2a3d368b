// Package whispercpp implements pkg/model on top of whisper.cpp's CGO
// bindings: the model is loaded once, and each pool slot owns a dedicated
// whisper context that Run reuses for every inference it serves.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/aldermoor/vocalis/pkg/model"
)

// Model wraps a loaded whisper.cpp model. It is shared, read-only, and
// outlives every State created from it.
type Model struct {
	model whisperlib.Model
}

// New loads a whisper.cpp model from modelPath. useGPU is accepted but not
// applied: the model is loaded with whisperlib.New(modelPath) alone, so GPU
// offload is not selected by this flag.
func New(modelPath string, useGPU bool) (*Model, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: model path must not be empty")
	}
	m, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	return &Model{model: m}, nil
}

// NewState allocates a fresh whisper.cpp context bound to the shared model.
// The context is the "state" handle the pool borrows and releases; it is
// reused across every Run call the pool routes to this slot, rather than
// recreated per utterance.
func (m *Model) NewState() (model.State, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whispercpp: new context: %w", err)
	}
	return &State{ctx: wctx}, nil
}

// Close releases the underlying model. Callers must close every State
// first.
func (m *Model) Close() error {
	return m.model.Close()
}

// State is one pool slot's whisper.cpp context. Run is not safe to call
// concurrently on the same State — the pool guarantees exclusive access
// between acquire and release, so no internal locking is needed here
// beyond guarding Close against a concurrent Run.
type State struct {
	mu  sync.Mutex
	ctx whisperlib.Context
}

// Run applies params to the bound context and transcribes pcm, returning
// every segment the model produced in order.
func (s *State) Run(ctx context.Context, params model.Params, pcm []float32) ([]model.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applyParams(s.ctx, params)

	if err := s.ctx.Process(pcm, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whispercpp: process: %w", err)
	}

	var segments []model.Segment
	for {
		seg, err := s.ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		segments = append(segments, s.convertSegment(seg, params.Language))
	}
	return segments, nil
}

// Close releases the context.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closer, ok := s.ctx.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// applyParams pushes the resolved decoding parameters onto the context.
// BestOf, the no-speech/logprob thresholds, and the diarization flag have no
// setter on the bindings' Context interface; the bindings' own defaults
// apply for those.
func applyParams(ctx whisperlib.Context, p model.Params) {
	if p.Language != "" {
		if err := ctx.SetLanguage(p.Language); err != nil {
			_ = err // auto-detect stays in effect if the tag is unrecognized
		}
	}
	ctx.SetTranslate(p.Translate)
	ctx.SetTokenTimestamps(true)
	if p.Temperature > 0 {
		ctx.SetTemperature(float32(p.Temperature))
	}
	if p.BeamSize > 0 {
		ctx.SetBeamSize(p.BeamSize)
	}
	if p.NThreads > 0 {
		ctx.SetThreads(uint(p.NThreads))
	}
	if p.EntropyThreshold > 0 {
		ctx.SetEntropyThold(float32(p.EntropyThreshold))
	}
	if p.InitialPrompt != "" {
		ctx.SetInitialPrompt(p.InitialPrompt)
	}
}

// csFromDuration converts a bindings timestamp, given as a duration, into
// the centisecond unit the core uses.
func csFromDuration(d interface{ Milliseconds() int64 }) int {
	return int(d.Milliseconds() / 10)
}

// convertSegment maps a bindings segment onto the model types, dropping
// special tokens (end-of-transcription sentinel and beyond) so only real
// text tokens reach the probability averaging downstream.
func (s *State) convertSegment(seg whisperlib.Segment, language string) model.Segment {
	out := model.Segment{
		Text:            strings.TrimSpace(seg.Text),
		Language:        language,
		StartCS:         csFromDuration(seg.Start),
		EndCS:           csFromDuration(seg.End),
		SpeakerTurnNext: seg.SpeakerTurnNext,
	}
	for _, tk := range seg.Tokens {
		if !s.ctx.IsText(tk) {
			continue
		}
		out.Tokens = append(out.Tokens, model.Token{
			Text:        tk.Text,
			Probability: float64(tk.P),
			StartCS:     csFromDuration(tk.Start),
			EndCS:       csFromDuration(tk.End),
		})
	}
	return out
}
