// Package options implements per-call request options resolved against
// server-wide defaults. A caller's request carries sentinel values for any
// field it leaves unset (-1 for numeric fields, "" for text fields); Resolve
// fills those in from the server's Defaults and returns a Resolved value
// with every field concrete for the remainder of the call.
package options

// Unset is the sentinel for an unset numeric Request field.
const Unset = -1

// Request is what a caller supplies for one transcription call. Numeric
// fields must be set to Unset (not left at their Go zero value) to inherit
// the server default — a caller that truly wants temperature 0.0 and a
// caller that never mentioned temperature are indistinguishable otherwise.
// HTTP/wire decoders are responsible for defaulting missing fields to Unset.
//
// EnableProsody has no numeric sentinel; nil means "inherit the server
// default" (prosody on), matching the wire protocols, which don't expose a
// prosody toggle at all — only cmd/vocalisd's own defaults or a
// programmatic caller would ever set it explicitly.
type Request struct {
	Language      string
	InitialPrompt string
	Translate     bool
	Diarization   bool
	Temperature   float64
	BeamSize      int

	EnableProsody     *bool
	MinPitchHz        float64
	MaxPitchHz        float64
	LPFAlpha          float64
	GenderThresholdHz float64
}

// Resolved is a Request with every field filled in against Defaults. It is
// frozen for the lifetime of the call it serves.
type Resolved struct {
	Language          string
	InitialPrompt     string
	Translate         bool
	Diarization       bool
	Temperature       float64
	BeamSize          int
	BestOf            int
	NThreads          int
	NoSpeechThreshold float64
	LogprobThreshold  float64
	EntropyThreshold  float64
	ValenceBias       float64

	EnableProsody     bool
	MinPitchHz        float64
	MaxPitchHz        float64
	LPFAlpha          float64
	GenderThresholdHz float64
}

// Defaults holds server-wide configuration that Resolve falls back to. Build
// one with New and the With* options, then call Resolve per request.
type Defaults struct {
	language          string
	temperature       float64
	beamSize          int
	bestOf            int
	nThreads          int
	noSpeechThreshold float64
	logprobThreshold  float64
	entropyThreshold  float64
	valenceBias       float64

	enableProsody     bool
	minPitchHz        float64
	maxPitchHz        float64
	lpfAlpha          float64
	genderThresholdHz float64
}

// Option configures Defaults.
type Option func(*Defaults)

// WithLanguage sets the server's default language tag used when a request
// leaves Language empty. Empty means auto-detect.
func WithLanguage(lang string) Option {
	return func(d *Defaults) { d.language = lang }
}

// WithTemperature sets the default decoding temperature. 0.0 means greedy
// decoding.
func WithTemperature(t float64) Option {
	return func(d *Defaults) { d.temperature = t }
}

// WithBeamSize sets the default beam search width.
func WithBeamSize(n int) Option {
	return func(d *Defaults) { d.beamSize = n }
}

// WithBestOf sets the default sampling candidate count used when beam
// search is disabled.
func WithBestOf(n int) Option {
	return func(d *Defaults) { d.bestOf = n }
}

// WithNThreads sets the default decode thread count.
func WithNThreads(n int) Option {
	return func(d *Defaults) { d.nThreads = n }
}

// WithNoSpeechThreshold sets the default no-speech probability above which
// a segment is treated as silence by the model itself.
func WithNoSpeechThreshold(v float64) Option {
	return func(d *Defaults) { d.noSpeechThreshold = v }
}

// WithLogprobThreshold sets the default average log-probability floor below
// which a segment is considered unreliable.
func WithLogprobThreshold(v float64) Option {
	return func(d *Defaults) { d.logprobThreshold = v }
}

// WithEntropyThreshold sets the default token-entropy ceiling.
func WithEntropyThreshold(v float64) Option {
	return func(d *Defaults) { d.entropyThreshold = v }
}

// WithValenceBias sets the default prosody valence offset. The
// pitch/brightness mapping alone skews flat; a small positive bias
// (0.10-0.35) centers its output distribution.
func WithValenceBias(v float64) Option {
	return func(d *Defaults) { d.valenceBias = v }
}

// WithEnableProsody sets whether prosody extraction runs by default.
// Defaults to true.
func WithEnableProsody(enabled bool) Option {
	return func(d *Defaults) { d.enableProsody = enabled }
}

// WithPitchRange sets the default pitch floor/ceiling (Hz) the prosody
// extractor keeps candidate f0 estimates within.
func WithPitchRange(minHz, maxHz float64) Option {
	return func(d *Defaults) {
		d.minPitchHz = minHz
		d.maxPitchHz = maxHz
	}
}

// WithLPFAlpha sets the default one-pole low-pass coefficient used to
// smooth the pitch-detection path.
func WithLPFAlpha(alpha float64) Option {
	return func(d *Defaults) { d.lpfAlpha = alpha }
}

// WithGenderThresholdHz sets the default pitch threshold the gender
// classifier compares against.
func WithGenderThresholdHz(hz float64) Option {
	return func(d *Defaults) { d.genderThresholdHz = hz }
}

// New builds Defaults from opts, seeded with this project's defaults:
// beam size 5, best-of 5, temperature 0.0, logprob threshold -1.0, no-speech
// threshold 0.6, entropy threshold 2.40, valence bias 0.15, and 4 decode
// threads. The VAD-skip duration is not an option here: it is a property of
// the server's shared VAD gate (vad.Gate.MinDurationMs, set from
// configuration), not of an individual call.
func New(opts ...Option) *Defaults {
	d := &Defaults{
		temperature:       0.0,
		beamSize:          5,
		bestOf:            5,
		nThreads:          4,
		noSpeechThreshold: 0.6,
		logprobThreshold:  -1.0,
		entropyThreshold:  2.40,
		valenceBias:       0.15,
		enableProsody:     true,
		minPitchHz:        50,
		maxPitchHz:        600,
		lpfAlpha:          0.07,
		genderThresholdHz: 170,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve fills req's unset fields from d and returns a frozen Resolved
// value. BestOf, NThreads, and the detection thresholds have no per-request
// override in the wire protocols and always come from d.
func (d *Defaults) Resolve(req Request) Resolved {
	r := Resolved{
		Language:          req.Language,
		InitialPrompt:     req.InitialPrompt,
		Translate:         req.Translate,
		Diarization:       req.Diarization,
		Temperature:       req.Temperature,
		BeamSize:          req.BeamSize,
		BestOf:            d.bestOf,
		NThreads:          d.nThreads,
		NoSpeechThreshold: d.noSpeechThreshold,
		LogprobThreshold:  d.logprobThreshold,
		EntropyThreshold:  d.entropyThreshold,
		ValenceBias:       d.valenceBias,

		EnableProsody:     d.enableProsody,
		MinPitchHz:        d.minPitchHz,
		MaxPitchHz:        d.maxPitchHz,
		LPFAlpha:          d.lpfAlpha,
		GenderThresholdHz: d.genderThresholdHz,
	}
	if r.Language == "" {
		r.Language = d.language
	}
	if req.Temperature == Unset {
		r.Temperature = d.temperature
	}
	if req.BeamSize == Unset {
		r.BeamSize = d.beamSize
	}
	if req.EnableProsody != nil {
		r.EnableProsody = *req.EnableProsody
	}
	if req.MinPitchHz != Unset {
		r.MinPitchHz = req.MinPitchHz
	}
	if req.MaxPitchHz != Unset {
		r.MaxPitchHz = req.MaxPitchHz
	}
	if req.LPFAlpha != Unset {
		r.LPFAlpha = req.LPFAlpha
	}
	if req.GenderThresholdHz != Unset {
		r.GenderThresholdHz = req.GenderThresholdHz
	}
	return r
}
