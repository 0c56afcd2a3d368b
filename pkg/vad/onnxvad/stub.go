//go:build !onnxvad

package onnxvad

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by New when the binary was built without the
// onnxvad tag.
var ErrUnavailable = errors.New("onnxvad: backend not compiled in (build with -tags onnxvad)")

// Engine is a placeholder satisfying vad.Engine's shape when no ONNX Runtime
// backend is compiled in; New always fails so callers fall back to whatever
// vad.NewGate(nil)'s fail-open default provides.
type Engine struct{}

// New always returns ErrUnavailable in a build without the onnxvad tag.
func New(modelPath, libPath string, threshold float64) (*Engine, error) {
	return nil, ErrUnavailable
}

// Detect never runs; present only so Engine satisfies vad.Engine structurally.
func (e *Engine) Detect(ctx context.Context, pcm []float32, sampleRate int) (bool, error) {
	return false, ErrUnavailable
}

// Close is a no-op.
func (e *Engine) Close() error { return nil }
