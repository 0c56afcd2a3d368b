package resample

import "testing"

func TestMono_SameRate_ReturnsUnchanged(t *testing.T) {
	in := []int16{1, 2, 3, 4, 5}
	out := Mono(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("expected identity passthrough, got len %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d mismatch: %d != %d", i, out[i], in[i])
		}
	}
}

func TestMono_InvalidRates_ReturnsNil(t *testing.T) {
	if out := Mono([]int16{1, 2, 3}, 0, 16000); out != nil {
		t.Fatalf("expected nil for zero srcRate, got %v", out)
	}
	if out := Mono([]int16{1, 2, 3}, 16000, -1); out != nil {
		t.Fatalf("expected nil for negative dstRate, got %v", out)
	}
}

func TestMono_EmptyInput_ReturnsNil(t *testing.T) {
	if out := Mono(nil, 8000, 16000); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}

func TestMono_UpsampleLengthApproximatelyDoubles(t *testing.T) {
	in := make([]int16, 1600) // 100ms @ 16kHz
	for i := range in {
		in[i] = int16(1000)
	}
	out := Mono(in, 16000, 32000)
	wantLen := len(in) * 2
	// Allow a couple of samples of rounding slack.
	if diff := abs(len(out) - wantLen); diff > 4 {
		t.Fatalf("upsampled length %d far from expected %d", len(out), wantLen)
	}
}

func TestMono_DownsampleLengthApproximatelyHalves(t *testing.T) {
	in := make([]int16, 3200) // 100ms @ 32kHz
	for i := range in {
		in[i] = int16(1000)
	}
	out := Mono(in, 32000, 16000)
	wantLen := len(in) / 2
	if diff := abs(len(out) - wantLen); diff > 4 {
		t.Fatalf("downsampled length %d far from expected %d", len(out), wantLen)
	}
}

func TestMono_ConstantSignalStaysRoughlyConstant(t *testing.T) {
	in := make([]int16, 1600)
	for i := range in {
		in[i] = 5000
	}
	out := Mono(in, 16000, 8000)
	for i, v := range out {
		if abs(int(v)-5000) > 50 {
			t.Fatalf("sample %d = %d, drifted too far from constant 5000", i, v)
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
