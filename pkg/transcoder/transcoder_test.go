package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aldermoor/vocalis/internal/resilience"
)

// fakeBinary writes a tiny shell/batch script that ignores its ffmpeg-style
// arguments and instead copies a fixed payload to the last argument (the
// output path), so tests don't depend on a real ffmpeg being installed.
func fakeBinary(t *testing.T, payload []byte, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary script is POSIX-shell only")
	}
	script := filepath.Join(dir, "fakeffmpeg.sh")
	content := "#!/bin/bash\nout=\"${@: -1}\"\n"
	if exitCode != 0 {
		content += "exit " + itoa(exitCode) + "\n"
	} else {
		payloadFile := filepath.Join(dir, "payload.bin")
		if err := os.WriteFile(payloadFile, payload, 0o644); err != nil {
			t.Fatalf("write payload: %v", err)
		}
		content += "cp " + payloadFile + " \"$out\"\n"
	}
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestTranscode_Success(t *testing.T) {
	want := []byte{1, 0, 2, 0, 3, 0}
	bin := fakeBinary(t, want, 0)
	tr := New(bin)

	got, err := tr.Transcode(context.Background(), []byte("fake mp3 bytes"))
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTranscode_SubprocessFailureReturnsError(t *testing.T) {
	bin := fakeBinary(t, nil, 1)
	tr := New(bin)

	_, err := tr.Transcode(context.Background(), []byte("garbage"))
	if err == nil {
		t.Fatal("expected an error from a failing subprocess")
	}
}

func TestTranscode_CleansUpTempFiles(t *testing.T) {
	want := []byte{9, 9}
	bin := fakeBinary(t, want, 0)
	tr := New(bin)

	tmpBefore, _ := os.ReadDir(os.TempDir())

	_, err := tr.Transcode(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}

	tmpAfter, _ := os.ReadDir(os.TempDir())
	if len(tmpAfter) > len(tmpBefore) {
		t.Fatalf("temp dir grew from %d to %d entries, files were not cleaned up", len(tmpBefore), len(tmpAfter))
	}
}

func TestNew_DefaultsToFfmpeg(t *testing.T) {
	tr := New("")
	if tr.binary != "ffmpeg" {
		t.Fatalf("binary = %q, want ffmpeg", tr.binary)
	}
}

func TestTranscode_ContextCancelledPropagatesError(t *testing.T) {
	bin := fakeBinary(t, []byte{0}, 0)
	tr := New(bin)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcode(ctx, []byte("x"))
	if err == nil {
		t.Fatal("expected an error for an already-cancelled context")
	}
}

func TestTranscode_CircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	bin := fakeBinary(t, nil, 1)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2})
	tr := New(bin, WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		if _, err := tr.Transcode(context.Background(), []byte("garbage")); err == nil {
			t.Fatalf("call %d: expected subprocess failure", i)
		}
	}

	_, err := tr.Transcode(context.Background(), []byte("garbage"))
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after breaker tripped, got %v", err)
	}
}
