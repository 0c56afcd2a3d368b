//go:build onnxvad

// Package onnxvad implements vad.Engine on top of Silero VAD v5 via ONNX
// Runtime: a 512-sample window at 16kHz against a combined [2,1,128] state
// tensor, with the shared library resolved lazily. Gate (pkg/vad) wants a
// single true/false verdict over a whole buffer rather than a per-chunk
// streaming result, so Detect slides the window across the buffer
// internally and folds per-window probabilities into one decision.
//
// Building with this engine requires the onnxvad build tag, a reachable
// libonnxruntime shared library, and an .onnx model file — none of which
// this repository ships.
package onnxvad

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// windowSize is the number of float32 samples per inference call. Silero
	// VAD v5 at 16kHz requires exactly 512 samples (32ms).
	windowSize = 512

	// stateSize is the hidden-state dimension per layer; Silero VAD v5 uses a
	// combined state tensor of shape [2, 1, 128].
	stateSize = 128

	// expectedSampleRate is the only sample rate Silero VAD v5 accepts.
	expectedSampleRate = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// Engine runs Silero VAD v5 inference via ONNX Runtime and implements
// vad.Engine's whole-buffer Detect call by sliding a 512-sample window across
// the input and reporting speech if any window's probability clears the
// configured threshold.
type Engine struct {
	mu sync.Mutex

	session *ort.AdvancedSession

	inputTensor  *ort.Tensor[float32] // [1, 512]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // scalar
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]

	threshold float64
}

// New loads libPath as the ONNX Runtime shared library (once per process)
// and modelPath as a Silero VAD v5 ONNX model, allocating the tensors the
// session runs against. threshold is the speech-probability cutoff.
func New(modelPath, libPath string, threshold float64) (*Engine, error) {
	ortInitOnce.Do(func() {
		if libPath == "" {
			var err error
			libPath, err = resolveLibPath()
			if err != nil {
				ortInitErr = fmt.Errorf("onnxvad: %w", err)
				return
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, ortInitErr
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, windowSize))
	if err != nil {
		return nil, fmt.Errorf("onnxvad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{expectedSampleRate})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create session: %w", err)
	}

	return &Engine{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		threshold:    threshold,
	}, nil
}

// Detect slides a 512-sample window across pcm and reports speech if any
// window's probability clears the engine's threshold. The recurrent state is
// reset at the start of every call: each Detect call is judged in isolation
// over the whole buffer handed to it.
func (e *Engine) Detect(ctx context.Context, pcm []float32, sampleRate int) (bool, error) {
	if sampleRate != expectedSampleRate {
		return false, fmt.Errorf("onnxvad: sample rate %d, want %d", sampleRate, expectedSampleRate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	clearFloat32(e.stateTensor.GetData())

	for start := 0; start+windowSize <= len(pcm); start += windowSize {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		prob, err := e.infer(pcm[start : start+windowSize])
		if err != nil {
			return false, err
		}
		if float64(prob) >= e.threshold {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) infer(window []float32) (float32, error) {
	copy(e.inputTensor.GetData(), window)
	if err := e.session.Run(); err != nil {
		return 0, fmt.Errorf("onnxvad: inference: %w", err)
	}
	prob := e.outputTensor.GetData()[0]
	copy(e.stateTensor.GetData(), e.stateNTensor.GetData())
	return prob, nil
}

// Close releases the ONNX Runtime session and tensors. Safe to call more
// than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.stateTensor != nil {
		e.stateTensor.Destroy()
		e.stateTensor = nil
	}
	if e.srTensor != nil {
		e.srTensor.Destroy()
		e.srTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.stateNTensor != nil {
		e.stateNTensor.Destroy()
		e.stateNTensor = nil
	}
	return nil
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
