// Package transcoder implements the external transcoder collaborator: for
// payloads that are not RIFF/WAVE, it shells out to a subprocess (ffmpeg
// by default) to produce raw little-endian signed 16-bit mono PCM at
// 16kHz. Arguments are passed as an argv array and never interpreted by a
// shell, so payload-derived paths cannot inject commands.
package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/aldermoor/vocalis/internal/resilience"
)

const (
	// OutputSampleRate is the fixed sample rate the transcoder always
	// produces.
	OutputSampleRate = 16000

	// OutputChannels is the fixed channel count the transcoder always
	// produces.
	OutputChannels = 1
)

// Transcoder shells out to an external program to convert an arbitrary
// audio container into raw PCM. The zero value is not usable; construct
// with New.
type Transcoder struct {
	binary  string
	breaker *resilience.CircuitBreaker
}

// Option configures a Transcoder during construction.
type Option func(*Transcoder)

// WithCircuitBreaker trips t's subprocess calls through cb: once ffmpeg (or
// whatever binary is configured) fails enough times in a row, further calls
// fail fast with resilience.ErrCircuitOpen instead of spawning another
// subprocess, until the reset timeout elapses.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(t *Transcoder) { t.breaker = cb }
}

// New creates a Transcoder that invokes binary (e.g. "ffmpeg") found on
// PATH, or an absolute path to it.
func New(binary string, opts ...Option) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	t := &Transcoder{binary: binary}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcode writes payload to a temporary file, invokes the configured
// binary to convert it to raw s16le mono 16kHz PCM in a second temporary
// file, and returns that PCM. Both temporary files are removed on every
// return path, including a failed conversion.
func (t *Transcoder) Transcode(ctx context.Context, payload []byte) ([]byte, error) {
	in, err := os.CreateTemp("", "vocalis-in-*.bin")
	if err != nil {
		return nil, fmt.Errorf("transcoder: create input temp file: %w", err)
	}
	inPath := in.Name()
	defer os.Remove(inPath)

	if _, err := in.Write(payload); err != nil {
		in.Close()
		return nil, fmt.Errorf("transcoder: write input temp file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("transcoder: close input temp file: %w", err)
	}

	outPath := inPath + ".raw"
	defer os.Remove(outPath)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", fmt.Sprint(OutputChannels),
		"-ar", fmt.Sprint(OutputSampleRate),
		outPath,
	}
	run := func() error {
		cmd := exec.CommandContext(ctx, t.binary, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("transcoder: %s failed: %w (%s)", t.binary, err, out)
		}
		return nil
	}
	if t.breaker != nil {
		err = t.breaker.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}

	pcm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("transcoder: read output temp file: %w", err)
	}
	return pcm, nil
}
