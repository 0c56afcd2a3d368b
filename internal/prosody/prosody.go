// Package prosody extracts pure-DSP affective features from a decoded speech
// segment: pitch, energy, zero-crossing rate,
// spectral centroid, and the derived gender/arousal/valence/emotion tags and
// 8-D speaker vector used downstream by the clusterer. No model calls; it
// allocates the per-frame statistics slices, one frame buffer, and a sorted
// copy for the median.
package prosody

import (
	"math"
	"sort"
)

// Options carries the tunable knobs a caller resolves once per request
// (pkg/options) and passes through to Extract.
type Options struct {
	// MinPitchHz/MaxPitchHz bound the accepted fundamental-frequency range;
	// per-frame estimates outside this band are discarded.
	MinPitchHz float64
	MaxPitchHz float64

	// LPFAlpha is the one-pole low-pass filter coefficient used to smooth
	// the signal before pitch/ZCR analysis. Lower values cut more
	// aggressively; 0.07 isolates typical male fundamentals.
	LPFAlpha float64

	// GenderThresholdHz is the pitch above which a segment is classified
	// female rather than male.
	GenderThresholdHz float64

	// ValenceBias is added to the raw valence score to counter a systematic
	// sadness skew in the pitch/brightness-only estimate.
	ValenceBias float64
}

// DefaultOptions returns the server defaults used when a request does not
// override any prosody knob.
func DefaultOptions() Options {
	return Options{
		MinPitchHz:        50,
		MaxPitchHz:        600,
		LPFAlpha:          0.07,
		GenderThresholdHz: 170,
		ValenceBias:       0.15,
	}
}

// AffectiveTags is the full set of prosody-derived features and
// classifications for one segment.
type AffectiveTags struct {
	GenderProxy      string     `json:"gender_proxy"`
	EmotionProxy     string     `json:"emotion_proxy"`
	Arousal          float64    `json:"arousal"`
	Valence          float64    `json:"valence"`
	PitchMeanHz      float64    `json:"pitch_mean_hz"`
	PitchStdHz       float64    `json:"pitch_std_hz"`
	EnergyMean       float64    `json:"energy_mean"`
	EnergyStd        float64    `json:"energy_std"`
	SpectralCentroid float64    `json:"spectral_centroid"`
	ZeroCrossingRate float64    `json:"zero_crossing_rate"`
	SpeakerVec       [8]float64 `json:"speaker_vec"`
}

// DefaultTags returns the deterministic zero-value tags Extract uses when a
// segment is too short or carries no voiced frames. Exported so callers that
// skip prosody analysis entirely (e.g. a VAD-negative short-circuit) can
// report the same defaults without fabricating a zero AffectiveTags by hand.
func DefaultTags() AffectiveTags {
	return defaultTags()
}

// defaultTags returns the deterministic zero-value tags used when a segment
// is too short or carries no voiced frames.
func defaultTags() AffectiveTags {
	return AffectiveTags{GenderProxy: "?", EmotionProxy: "neutral"}
}

// minFrameSamples is the gate below which Extract returns defaultTags
// without running the frame loop (10ms at 16kHz).
const minFrameSamples = 160

// Extract computes AffectiveTags over pcm, a mono float32 buffer sampled at
// sampleRate Hz. pcm is read-only; Extract never mutates or retains it.
func Extract(pcm []float32, sampleRate int, opts Options) AffectiveTags {
	if len(pcm) < minFrameSamples {
		return defaultTags()
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	frameShift := sampleRate / 100
	if frameShift <= 0 {
		return defaultTags()
	}

	var (
		f0s, rmses, zcrs, scs []float64
		lastRMS               float64
		peakCount             int
		lpf                   float64
	)

	frameBuf := make([]float64, frameShift)

	for i := 0; i+frameShift <= len(pcm); i += frameShift {
		var sumSq float64
		for k := 0; k < frameShift; k++ {
			raw := float64(pcm[i+k])
			sumSq += raw * raw

			lpf += opts.LPFAlpha * (raw - lpf)
			frameBuf[k] = lpf
		}
		rms := math.Sqrt(sumSq / float64(frameShift))
		rmses = append(rmses, rms)

		if rms > 0.05 && lastRMS <= 0.05 {
			peakCount++
		}
		lastRMS = rms

		clipThreshold := maxF64(0.002, rms*0.15)
		var cycles, rawCrossings int
		var positive, initialized bool
		for k := 1; k < frameShift; k++ {
			v := frameBuf[k]
			if (v >= 0) != (frameBuf[k-1] >= 0) {
				rawCrossings++
			}
			switch {
			case !initialized:
				if v > clipThreshold {
					positive, initialized = true, true
				} else if v < -clipThreshold {
					positive, initialized = false, true
				}
			case positive && v < -clipThreshold:
				positive = false
				cycles++
			case !positive && v > clipThreshold:
				positive = true
			}
		}
		zcrs = append(zcrs, float64(rawCrossings)/float64(frameShift))

		if rms > 0.015 && cycles > 0 {
			duration := float64(frameShift) / float64(sampleRate)
			f0 := float64(cycles) / duration
			if f0 >= opts.MinPitchHz && f0 <= opts.MaxPitchHz {
				f0s = append(f0s, f0)
			}
		}

		var power, weighted float64
		for k := 1; k < frameShift; k++ {
			diff := absF64(float64(pcm[i+k]) - float64(pcm[i+k-1]))
			weighted += diff * float64(k)
			power += diff
		}
		sc := 0.0
		if power > 0 {
			sc = weighted / power
		}
		scs = append(scs, sc)
	}

	if len(f0s) == 0 {
		// No voiced frames: every numeric field keeps its deterministic
		// default rather than classifying unvoiced noise.
		return defaultTags()
	}

	pitchMean := median(f0s)
	pitchStd := stddev(f0s, mean(f0s))
	energyMean := 0.01
	energyStd := 0.0
	if len(rmses) > 0 {
		energyMean = mean(rmses)
		energyStd = stddev(rmses, energyMean)
	}
	spectralCentroid := 50.0
	if len(scs) > 0 {
		spectralCentroid = mean(scs)
	}
	zcrMean := 0.1
	if len(zcrs) > 0 {
		zcrMean = mean(zcrs)
	}

	genderThreshold := opts.GenderThresholdHz
	if genderThreshold <= 0 {
		genderThreshold = 170
	}

	// Octave-correction: harmonic-rich male voices frequently yield a
	// ZCR-derived estimate at 2x the true fundamental.
	if pitchMean > genderThreshold {
		if zcrMean < 0.022 || (spectralCentroid < 85 && energyMean > 0.12 && pitchMean < 240) {
			pitchMean /= 2
		}
	}

	var gender string
	switch {
	case zcrMean < 0.020:
		gender = "M"
	case pitchMean > genderThreshold:
		gender = "F"
	default:
		gender = "M"
	}

	durationSec := float64(len(pcm)) / float64(sampleRate)
	speechRate := 0.0
	if durationSec > 0 {
		speechRate = float64(peakCount) / durationSec
	}

	arousal := clamp01(0.7*softNorm(energyMean, 0.02, 0.20) + 0.3*softNorm(speechRate, 2, 9))

	pitchLo, pitchHi := 60.0, 350.0
	switch gender {
	case "M":
		pitchLo, pitchHi = 60, 180
	case "F":
		pitchLo, pitchHi = 160, 350
	}
	normPitch := softNorm(pitchMean, pitchLo, pitchHi)
	normBright := softNorm(spectralCentroid, 20, 180)
	valence := (0.4*normPitch+0.6*normBright)*2 - 1 + opts.ValenceBias
	if valence > 1 {
		valence = 1
	} else if valence < -1 {
		valence = -1
	}

	emotion := "neutral"
	switch {
	case arousal > 0.65 && valence > 0.1:
		emotion = "excited"
	case arousal > 0.65:
		emotion = "angry"
	case arousal < 0.30 && valence < -0.4:
		emotion = "sad"
	case arousal < 0.30:
		emotion = "neutral"
	}

	vec := [8]float64{}
	pitchBase := softNorm(pitchMean, 50, 350)
	switch gender {
	case "F":
		vec[0] = 0.6 + pitchBase*0.4
	default:
		vec[0] = pitchBase * 0.4
	}
	vec[1] = softNorm(pitchStd, 5, 80)
	vec[2] = softNorm(energyMean, 0, 0.3)
	vec[3] = softNorm(spectralCentroid, 0, 250)
	vec[4] = softNorm(zcrMean, 0, 0.5)
	vec[5] = softNorm(speechRate, 1, 10)
	vec[6] = arousal
	vec[7] = (valence + 1) / 2

	return AffectiveTags{
		GenderProxy:      gender,
		EmotionProxy:     emotion,
		Arousal:          arousal,
		Valence:          valence,
		PitchMeanHz:      pitchMean,
		PitchStdHz:       pitchStd,
		EnergyMean:       energyMean,
		EnergyStd:        energyStd,
		SpectralCentroid: spectralCentroid,
		ZeroCrossingRate: zcrMean,
		SpeakerVec:       vec,
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64, m float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var acc float64
	for _, x := range v {
		d := x - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(v)))
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	sort.Float64s(cp)
	return cp[len(cp)/2]
}

func softNorm(val, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	n := (val - lo) / (hi - lo)
	return clamp01(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxF64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absF64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
