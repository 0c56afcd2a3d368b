// Package mock provides a test double for vad.Engine: call recording plus
// an injectable result/error, the pattern every mock collaborator in this
// repo follows.
package mock

import (
	"context"
	"sync"
)

// DetectCall records a single invocation of Engine.Detect.
type DetectCall struct {
	SampleCount int
	SampleRate  int
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Result is returned by every Detect call.
	Result bool

	// Err, if non-nil, is returned by every Detect call.
	Err error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Calls records every invocation of Detect, in order.
	Calls []DetectCall

	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

// Detect records the call and returns Result, Err.
func (e *Engine) Detect(_ context.Context, pcm []float32, sampleRate int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, DetectCall{SampleCount: len(pcm), SampleRate: sampleRate})
	return e.Result, e.Err
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// Reset clears all recorded call history. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
	e.CloseCallCount = 0
}
