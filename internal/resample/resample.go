// Package resample converts mono 16-bit PCM between sample rates using a
// windowed-sinc kernel. Conversion is whole-buffer — there is no
// streaming/chunked mode.
package resample

import "math"

// sincWindowHalfWidth is the number of input samples considered on each side
// of the ideal (fractional) source position. Larger values trade CPU for
// fewer aliasing artifacts; 8 is a "fast but good enough" choice typical of
// resampler "fast" presets.
const sincWindowHalfWidth = 8

// Mono resamples int16 mono PCM from srcRate to dstRate. If srcRate ==
// dstRate the input is returned unchanged without copying. On invalid input
// (non-positive rates, empty buffer) an empty buffer is returned — the
// caller treats this as silence rather than as a hard error.
func Mono(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	if srcRate == dstRate {
		return pcm
	}
	n := len(pcm)
	if n == 0 {
		return nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	outN := int(float64(n) / ratio)
	if outN <= 0 {
		return nil
	}
	out := make([]int16, outN)

	for i := range out {
		srcPos := float64(i) * ratio
		out[i] = sincSample(pcm, srcPos, ratio)
	}
	return out
}

// sincSample evaluates the windowed-sinc kernel at fractional source
// position pos, summing contributions from the surrounding
// sincWindowHalfWidth samples on each side. When downsampling (ratio > 1)
// the kernel is stretched to act as an anti-aliasing low-pass filter.
func sincSample(pcm []int16, pos, ratio float64) int16 {
	n := len(pcm)
	center := int(math.Floor(pos))

	// Stretch factor: when downsampling the kernel support is widened by the
	// ratio; when upsampling the base window is used unchanged.
	scale := ratio
	if scale < 1 {
		scale = 1
	}

	lo := center - int(float64(sincWindowHalfWidth)*scale)
	hi := center + int(float64(sincWindowHalfWidth)*scale) + 1
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}

	var sum, weightSum float64
	for i := lo; i < hi; i++ {
		x := (pos - float64(i)) / scale
		w := sincKernel(x) * blackmanWindow(x/float64(sincWindowHalfWidth))
		sum += w * float64(pcm[i])
		weightSum += w
	}
	if weightSum == 0 {
		if center >= 0 && center < n {
			return pcm[center]
		}
		return 0
	}

	v := sum / weightSum
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// sincKernel is the normalised sinc function, sinc(0) = 1.
func sincKernel(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanWindow tapers the sinc kernel to zero at the edges of its support,
// t expected in [-1, 1].
func blackmanWindow(t float64) float64 {
	if t < -1 || t > 1 {
		return 0
	}
	const a0, a1, a2 = 0.42, 0.5, 0.08
	x := math.Pi * (t + 1) // maps [-1,1] -> [0, 2π]
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
}
