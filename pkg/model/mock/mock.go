// Package mock provides test doubles for pkg/model, needing neither a model
// file nor CGO: injectable segments/errors plus call recording.
package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aldermoor/vocalis/pkg/model"
)

// ErrClosed is returned by Run/NewState after Close.
var ErrClosed = errors.New("mock: closed")

// RunCall records one invocation of State.Run.
type RunCall struct {
	Params   model.Params
	NSamples int
}

// Model is a mock model.Model. NewState returns fresh *State values sharing
// the same script/result fields, mirroring how a real context's states
// share one underlying acoustic model.
type Model struct {
	mu     sync.Mutex
	closed bool

	// Segments is returned by every State created from this Model, unless
	// Err is set.
	Segments []model.Segment

	// Err, if non-nil, is returned by every Run call instead of Segments.
	Err error

	// Delay, if positive, is slept inside every Run call before any lock is
	// taken, widening the window concurrency tests observe.
	Delay time.Duration

	states []*State

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// New creates a Model that returns segments on every Run call.
func New(segments []model.Segment) *Model {
	return &Model{Segments: segments}
}

// NewState allocates a *State bound to m.
func (m *Model) NewState() (model.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s := &State{model: m}
	m.states = append(m.states, s)
	return s, nil
}

// Close marks the model closed. Safe to call more than once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// States returns every *State this Model has handed out, in creation order.
func (m *Model) States() []*State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*State, len(m.states))
	copy(out, m.states)
	return out
}

// TotalRuns sums the Run invocations across every state.
func (m *Model) TotalRuns() int {
	total := 0
	for _, s := range m.States() {
		s.mu.Lock()
		total += len(s.Calls)
		s.mu.Unlock()
	}
	return total
}

// MaxInFlight reports the highest number of Run calls ever observed
// executing concurrently across this Model's states.
func (m *Model) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// State is a mock model.State bound to a Model.
type State struct {
	mu     sync.Mutex
	model  *Model
	closed bool

	// Calls records every Run invocation, in order.
	Calls []RunCall
}

// Run records the call and returns the bound Model's Segments/Err.
func (s *State) Run(_ context.Context, params model.Params, pcm []float32) ([]model.Segment, error) {
	cur := s.model.inFlight.Add(1)
	defer s.model.inFlight.Add(-1)
	for {
		prev := s.model.maxInFlight.Load()
		if cur <= prev || s.model.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if s.model.Delay > 0 {
		time.Sleep(s.model.Delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.Calls = append(s.Calls, RunCall{Params: params, NSamples: len(pcm)})

	s.model.mu.Lock()
	defer s.model.mu.Unlock()
	if s.model.Err != nil {
		return nil, s.model.Err
	}
	out := make([]model.Segment, len(s.model.Segments))
	copy(out, s.model.Segments)
	return out, nil
}

// Close marks the state closed. Safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
