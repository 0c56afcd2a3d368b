// Command vocalisd is the main entry point for the vocalis speech-to-text
// inference server. It wires the audio decode/resample/VAD pipeline, the
// bounded decoder-state pool, and the HTTP/websocket protocol surfaces
// around a single loaded whisper.cpp model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aldermoor/vocalis/internal/api/httpapi"
	"github.com/aldermoor/vocalis/internal/api/wsapi"
	"github.com/aldermoor/vocalis/internal/config"
	"github.com/aldermoor/vocalis/internal/health"
	"github.com/aldermoor/vocalis/internal/observe"
	"github.com/aldermoor/vocalis/internal/orchestrator"
	"github.com/aldermoor/vocalis/internal/pool"
	"github.com/aldermoor/vocalis/internal/resilience"
	"github.com/aldermoor/vocalis/pkg/model"
	"github.com/aldermoor/vocalis/pkg/model/whispercpp"
	"github.com/aldermoor/vocalis/pkg/options"
	"github.com/aldermoor/vocalis/pkg/transcoder"
	"github.com/aldermoor/vocalis/pkg/vad"
	"github.com/aldermoor/vocalis/pkg/vad/onnxvad"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modelPath := flag.String("model", "", "overrides model.path from the config file")
	vadModelPath := flag.String("vad-model", "", "overrides vad.model_path from the config file")
	onnxLibPath := flag.String("onnx-lib", "", "overrides vad.lib_path from the config file")
	listenAddr := flag.String("listen", "", "overrides server.listen_addr from the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocalisd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocalisd: %v\n", err)
		}
		return 1
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *vadModelPath != "" {
		cfg.VAD.ModelPath = *vadModelPath
	}
	if *onnxLibPath != "" {
		cfg.VAD.LibPath = *onnxLibPath
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("vocalisd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"model", cfg.Model.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	acousticModel, err := whispercpp.New(cfg.Model.Path, cfg.Model.UseGPU)
	if err != nil {
		slog.Error("failed to load acoustic model", "error", err)
		return 1
	}
	defer acousticModel.Close()

	statePool, err := newStatePool(cfg, acousticModel)
	if err != nil {
		slog.Error("failed to build decoder-state pool", "error", err)
		return 1
	}
	defer drainPool(statePool)

	vadGate := newVADGate(cfg)
	defer vadGate.Close()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocalisd"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics := observe.DefaultMetrics()

	defaults := options.New(
		options.WithBeamSize(cfg.Model.BeamSize),
		options.WithBestOf(cfg.Model.BestOf),
		options.WithTemperature(cfg.Model.Temperature),
		options.WithNThreads(resolveThreads(cfg.Model.NThreads)),
		options.WithNoSpeechThreshold(cfg.Model.NoSpeechThreshold),
		options.WithLogprobThreshold(cfg.Model.LogprobThreshold),
	)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
	}
	if cfg.Decode.TranscoderBinary != "" {
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: cfg.Decode.TranscoderBinary,
		})
		orchOpts = append(orchOpts, orchestrator.WithTranscoder(
			transcoder.New(cfg.Decode.TranscoderBinary, transcoder.WithCircuitBreaker(breaker)),
		))
	}

	orch := orchestrator.New(statePool, vadGate, defaults, orchOpts...)

	mux := http.NewServeMux()
	httpapi.New(orch).Register(mux)
	wsapi.New(orch).Register(mux)

	const maxBorrowAge = 2 * time.Minute
	healthHandler := health.New(
		func(_ context.Context) error {
			if acousticModel == nil {
				return fmt.Errorf("acoustic model not loaded")
			}
			return nil
		},
		func(_ context.Context) error {
			if age := statePool.OldestBorrowAge(); age > maxBorrowAge {
				return fmt.Errorf("a decoder state has been held for %s, exceeding %s", age, maxBorrowAge)
			}
			return nil
		},
	)
	healthHandler.Register(mux)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux}
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if old.Server.LogLevel != new.Server.LogLevel {
			logLevel.Set(slogLevel(new.Server.LogLevel))
			slog.Info("log level changed", "from", old.Server.LogLevel, "to", new.Server.LogLevel)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// newStatePool allocates cfg.Model.ParallelRequests whisper.cpp decoder
// states bound to acousticModel, one per pool slot, reused for every Run
// the slot serves.
func newStatePool(cfg *config.Config, acousticModel model.Model) (*pool.Pool[model.State], error) {
	n := cfg.Model.ParallelRequests
	if n <= 0 {
		n = 2
	}
	return pool.New(n, func(int) (model.State, error) {
		return acousticModel.NewState()
	}, func(s model.State) {
		_ = s.Close()
	})
}

// newVADGate builds a VAD gate around the ONNX-backed Silero engine when a
// model path is configured, or a nil-engine gate (always reports speech
// present) otherwise. A VAD model that fails to load is not fatal: the gate
// fails open and every request is treated as containing speech.
func newVADGate(cfg *config.Config) *vad.Gate {
	if cfg.VAD.ModelPath == "" {
		return vad.NewGate(nil)
	}

	threshold := cfg.VAD.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	engine, err := onnxvad.New(cfg.VAD.ModelPath, cfg.VAD.LibPath, threshold)
	if err != nil {
		slog.Warn("VAD model failed to load, gating disabled", "error", err)
		return vad.NewGate(nil)
	}
	gate := vad.NewGate(engine)
	if cfg.VAD.SkipMs > 0 {
		gate.MinDurationMs = cfg.VAD.SkipMs
	}
	return gate
}

// drainPool closes every state the pool holds at shutdown. It assumes no
// request is still in flight — the caller shuts down the HTTP server
// (draining in-flight requests) before calling this — so every state is
// available and Acquire never blocks.
func drainPool(p *pool.Pool[model.State]) {
	n := p.Size()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		b, err := p.Acquire(ctx)
		if err != nil {
			return
		}
		_ = b.State().Close()
	}
}

// resolveThreads returns n if positive, else min(4, NumCPU).
func resolveThreads(n int) int {
	if n > 0 {
		return n
	}
	if c := runtime.NumCPU(); c < 4 {
		return c
	}
	return 4
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
