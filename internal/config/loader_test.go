package config_test

import (
	"strings"
	"testing"

	"github.com/aldermoor/vocalis/internal/config"
)

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/path.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestEnvOverride_ModelPath(t *testing.T) {
	t.Setenv("STT_WHISPER_SERVICE_MODEL_PATH", "/override/model.bin")

	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Path != "/override/model.bin" {
		t.Errorf("model.path: got %q, want override", cfg.Model.Path)
	}
}

func TestEnvOverride_LeavesYAMLValueWhenUnset(t *testing.T) {
	yaml := `
model:
  path: /from/yaml.bin
  beam_size: 5
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.Path != "/from/yaml.bin" {
		t.Errorf("model.path: got %q, want yaml value preserved", cfg.Model.Path)
	}
}

func TestEnvOverride_NumericFields(t *testing.T) {
	t.Setenv("STT_WHISPER_SERVICE_MODEL_PATH", "/m.bin")
	t.Setenv("STT_WHISPER_SERVICE_PARALLEL_REQUESTS", "8")
	t.Setenv("STT_WHISPER_SERVICE_BEAM_SIZE", "3")
	t.Setenv("STT_WHISPER_SERVICE_TEMPERATURE", "0.2")
	t.Setenv("STT_WHISPER_SERVICE_USE_GPU", "true")

	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.ParallelRequests != 8 {
		t.Errorf("parallel_requests: got %d, want 8", cfg.Model.ParallelRequests)
	}
	if cfg.Model.BeamSize != 3 {
		t.Errorf("beam_size: got %d, want 3", cfg.Model.BeamSize)
	}
	if cfg.Model.Temperature != 0.2 {
		t.Errorf("temperature: got %v, want 0.2", cfg.Model.Temperature)
	}
	if !cfg.Model.UseGPU {
		t.Error("use_gpu: expected true")
	}
}

func TestEnvOverride_InvalidNumericLeavesYAMLValue(t *testing.T) {
	t.Setenv("STT_WHISPER_SERVICE_BEAM_SIZE", "not-a-number")

	yaml := `
model:
  path: /m.bin
  beam_size: 7
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model.BeamSize != 7 {
		t.Errorf("beam_size: got %d, want 7 (unparsable env ignored)", cfg.Model.BeamSize)
	}
}

func TestEnvOverride_LogLevel(t *testing.T) {
	t.Setenv("STT_WHISPER_SERVICE_MODEL_PATH", "/m.bin")
	t.Setenv("STT_WHISPER_SERVICE_LOG_LEVEL", "debug")

	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
}
