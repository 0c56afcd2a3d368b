// Package config provides the configuration schema and loader for vocalisd.
package config

// Config is the root configuration structure for vocalisd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Model  ModelConfig  `yaml:"model"`
	VAD    VADConfig    `yaml:"vad"`
	Decode DecodeConfig `yaml:"decode"`
}

// ServerConfig holds network and logging settings for the vocalisd server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP/WS surface listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens on.
	// Empty serves /metrics on the main ListenAddr mux instead of a separate
	// listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogLevel names a slog verbosity level accepted in configuration.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ModelConfig selects and configures the acoustic model collaborator.
type ModelConfig struct {
	// Path is the filesystem path to the whisper.cpp model file. Required.
	Path string `yaml:"path"`

	// UseGPU is passed to pkg/model/whispercpp.New, which does not apply it
	// to the whisper.cpp bindings.
	UseGPU bool `yaml:"use_gpu"`

	// ParallelRequests is N, the fixed decoder-state pool size. Must be
	// at least 1. Defaults to 2 if unset.
	ParallelRequests int `yaml:"parallel_requests"`

	// NThreads is the decode thread count per inference call. Defaults to
	// min(4, NumCPU) if unset.
	NThreads int `yaml:"n_threads"`

	// BeamSize, Temperature, BestOf, NoSpeechThreshold, and LogprobThreshold
	// are the server-wide decoding defaults (see pkg/options).
	BeamSize          int     `yaml:"beam_size"`
	Temperature       float64 `yaml:"temperature"`
	BestOf            int     `yaml:"best_of"`
	NoSpeechThreshold float64 `yaml:"no_speech_threshold"`
	LogprobThreshold  float64 `yaml:"logprob_threshold"`
}

// VADConfig selects and configures the voice-activity-detection
// collaborator. A zero-value VADConfig disables VAD entirely (the gate
// always reports speech present).
type VADConfig struct {
	// ModelPath is the filesystem path to the Silero ONNX model file. Empty
	// disables VAD.
	ModelPath string `yaml:"model_path"`

	// LibPath overrides the onnxruntime shared library path; empty resolves
	// it relative to the running binary (see pkg/vad/onnxvad.resolveLibPath).
	LibPath string `yaml:"lib_path"`

	// Threshold is the speech-probability cutoff, in [0,1]. Defaults to 0.5.
	Threshold float64 `yaml:"threshold"`

	// SkipMs is the minimum clip duration, in milliseconds, below which VAD
	// is bypassed entirely. Defaults to 200.
	SkipMs int `yaml:"skip_ms"`
}

// DecodeConfig configures the external transcoder collaborator used for
// non-RIFF/WAVE payloads.
type DecodeConfig struct {
	// TranscoderBinary is the executable invoked to transcode non-RIFF/WAVE
	// audio (e.g. "ffmpeg"). Empty disables the transcoder: such payloads
	// fall back to the raw-PCM-at-16kHz assumption directly.
	TranscoderBinary string `yaml:"transcoder_binary"`
}
