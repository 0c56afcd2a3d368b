// Package model defines the capability set for the acoustic-model
// collaborator: a loaded Whisper-family model and the per-slot decoder
// state it hands out. The core only ever talks to this narrow interface;
// pkg/model/whispercpp wraps the real whisper.cpp CGO bindings and
// pkg/model/mock provides a test double that needs neither a model file
// nor CGO.
package model

import "context"

// Token is one recognized token within a segment, in centisecond units.
type Token struct {
	Text        string
	Probability float64
	StartCS     int
	EndCS       int
}

// Segment is one model-reported span of transcribed audio.
type Segment struct {
	Text            string
	Language        string
	StartCS         int
	EndCS           int
	SpeakerTurnNext bool
	Tokens          []Token
}

// Params are the per-call inference parameters, resolved from request
// options (pkg/options) before a Run.
type Params struct {
	Language          string
	InitialPrompt     string
	Translate         bool
	EnableDiarization bool
	Temperature       float64
	BeamSize          int
	BestOf            int
	NThreads          int
	NoSpeechThreshold float64
	LogprobThreshold  float64
	EntropyThreshold  float64
}

// Model is the shared, read-only, process-lifetime handle to a loaded
// acoustic model. It is safe for concurrent use: creating states from it
// does not mutate it.
type Model interface {
	// NewState allocates a decoder state bound to this model. States are
	// never shared between concurrent Run calls; the pool hands out
	// exclusive borrows.
	NewState() (State, error)

	// Close releases the model. Must only be called after every State has
	// been closed.
	Close() error
}

// State is an exclusively-borrowed decoder state. The pool owns every
// State it allocates for the lifetime of the process; callers only ever
// hold one between acquire and release.
type State interface {
	// Run performs one inference pass over pcm (mono float32 at 16kHz) and
	// returns the segments the model produced, in order. A nonzero/failed
	// run returns a non-nil error and no segments; the caller still owns
	// releasing the state back to the pool.
	Run(ctx context.Context, params Params, pcm []float32) ([]Segment, error)

	// Close releases resources held by this state. Safe to call once, at
	// process shutdown alongside the pool it belongs to.
	Close() error
}
