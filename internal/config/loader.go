package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// variable overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment variable
// overrides, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers STT_WHISPER_SERVICE_* environment variables on
// top of the YAML-decoded config. An unset or unparsable variable leaves
// the YAML-supplied value untouched.
func applyEnvOverrides(cfg *Config) {
	envString(&cfg.Server.ListenAddr, "STT_WHISPER_SERVICE_LISTEN_ADDRESS")
	envString((*string)(&cfg.Server.LogLevel), "STT_WHISPER_SERVICE_LOG_LEVEL")
	envString(&cfg.Server.MetricsAddr, "STT_WHISPER_SERVICE_METRICS_ADDRESS")

	envString(&cfg.Model.Path, "STT_WHISPER_SERVICE_MODEL_PATH")
	envBool(&cfg.Model.UseGPU, "STT_WHISPER_SERVICE_USE_GPU")
	envInt(&cfg.Model.ParallelRequests, "STT_WHISPER_SERVICE_PARALLEL_REQUESTS")
	envInt(&cfg.Model.NThreads, "STT_WHISPER_SERVICE_THREADS")
	envInt(&cfg.Model.BeamSize, "STT_WHISPER_SERVICE_BEAM_SIZE")
	envFloat(&cfg.Model.Temperature, "STT_WHISPER_SERVICE_TEMPERATURE")
	envInt(&cfg.Model.BestOf, "STT_WHISPER_SERVICE_BEST_OF")
	envFloat(&cfg.Model.NoSpeechThreshold, "STT_WHISPER_SERVICE_NO_SPEECH_THRESHOLD")
	envFloat(&cfg.Model.LogprobThreshold, "STT_WHISPER_SERVICE_LOGPROB_THRESHOLD")

	envString(&cfg.VAD.ModelPath, "STT_WHISPER_SERVICE_VAD_MODEL")
	envFloat(&cfg.VAD.Threshold, "STT_WHISPER_SERVICE_VAD_THRESHOLD")

	envString(&cfg.Decode.TranscoderBinary, "STT_WHISPER_SERVICE_TRANSCODER_BINARY")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func envBool(dst *bool, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

func envInt(dst *int, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envFloat(dst *float64, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if cfg.Model.ParallelRequests < 0 {
		errs = append(errs, fmt.Errorf("model.parallel_requests %d must not be negative", cfg.Model.ParallelRequests))
	}
	if cfg.Model.BeamSize < 0 {
		errs = append(errs, fmt.Errorf("model.beam_size %d must not be negative", cfg.Model.BeamSize))
	}
	if cfg.Model.NoSpeechThreshold < 0 || cfg.Model.NoSpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("model.no_speech_threshold %.2f is out of range [0, 1]", cfg.Model.NoSpeechThreshold))
	}

	if cfg.VAD.ModelPath != "" {
		if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
			errs = append(errs, fmt.Errorf("vad.threshold %.2f is out of range [0, 1]", cfg.VAD.Threshold))
		}
		if cfg.VAD.SkipMs < 0 {
			errs = append(errs, fmt.Errorf("vad.skip_ms %d must not be negative", cfg.VAD.SkipMs))
		}
	}

	return errors.Join(errs...)
}
