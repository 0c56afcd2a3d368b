// Package vad defines the capability set for the voice-activity-detection
// collaborator. A VAD engine is a single-call,
// whole-buffer speech/no-speech classifier — unlike streaming frame-level
// VAD used elsewhere in the ecosystem, the Gate this package wraps makes one
// decision per request over the full decoded buffer.
//
// Implementations must be safe for concurrent use across independent Engine
// instances, but a single underlying native VAD context is frequently not
// thread-safe internally; see Gate, which serializes calls with a mutex so
// callers never need to reason about that themselves.
package vad

import (
	"context"
	"sync"
)

// Engine is the narrow capability set a VAD backend must implement: decide
// whether a mono 16kHz float32 buffer contains speech. Real backends (e.g.
// pkg/vad/onnxvad) wrap a native/ONNX model; pkg/vad/mock provides a test
// double.
type Engine interface {
	// Detect returns true if pcm contains speech. Implementations must not
	// retain pcm past the call.
	Detect(ctx context.Context, pcm []float32, sampleRate int) (bool, error)

	// Close releases any resources (model sessions, native handles) held by
	// the engine. Calling Close more than once must be safe.
	Close() error
}

// Gate wraps an Engine with a dedicated mutex (the underlying engine is
// assumed not thread-safe), a minimum-duration bypass for very short clips,
// and a fail-open default when no engine is configured.
type Gate struct {
	mu     sync.Mutex
	engine Engine

	// MinDurationMs is the clip duration below which VAD is skipped
	// entirely (treated as speech) to avoid false rejects on short clips.
	// Defaults to 200ms if zero.
	MinDurationMs int
}

// NewGate constructs a Gate around engine. engine may be nil, in which case
// HasSpeech always returns true — VAD disabled or unavailable is treated as
// "let everything through".
func NewGate(engine Engine) *Gate {
	return &Gate{engine: engine, MinDurationMs: 200}
}

// HasSpeech decides whether pcm (mono, sampleRate Hz) contains speech.
// Buffers shorter than MinDurationMs bypass the engine entirely and report
// speech present.
func (g *Gate) HasSpeech(ctx context.Context, pcm []float32, sampleRate int) (bool, error) {
	if g.engine == nil {
		return true, nil
	}

	durationMs := 0
	if sampleRate > 0 {
		durationMs = len(pcm) * 1000 / sampleRate
	}
	minMs := g.MinDurationMs
	if minMs <= 0 {
		minMs = 200
	}
	if durationMs < minMs {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Detect(ctx, pcm, sampleRate)
}

// Close releases the underlying engine, if any.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.engine == nil {
		return nil
	}
	return g.engine.Close()
}
