// Package runtime wires configuration, storage, the event bus, the
// inference engine, and the HTTP surface into one process.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlancelabs/parlance/internal/bus"
	"github.com/parlancelabs/parlance/internal/config"
	"github.com/parlancelabs/parlance/internal/engine"
	"github.com/parlancelabs/parlance/internal/natsserver"
	"github.com/parlancelabs/parlance/internal/pipeline"
	"github.com/parlancelabs/parlance/internal/server"
	"github.com/parlancelabs/parlance/internal/store"
	"github.com/parlancelabs/parlance/internal/tasks"
	"github.com/parlancelabs/parlance/internal/voicecache"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var embedded *natsserver.EmbeddedServer
	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		busCfg := r.cfg.Bus
		if r.cfg.Bus.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", r.cfg.Bus.Port)}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
	}
	defer func() {
		busClient.Close()
		embedded.Shutdown()
	}()

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	synth, err := buildSynthesizer(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	transcriber, err := buildTranscriber(r.cfg.Transcriber)
	if err != nil {
		return fmt.Errorf("failed to build transcriber: %w", err)
	}

	runner := tasks.New(ctx, r.cfg.VoiceCache.QueueSize, r.logger)
	defer runner.Close()

	cache := voicecache.New(synth.Voices, st, runner,
		time.Duration(r.cfg.VoiceCache.TTLDays)*24*time.Hour, r.logger)
	pipe := pipeline.New(synth, r.cfg.Synthesis, r.cfg.Clone, r.logger)

	var publisher server.Publisher
	if busClient != nil {
		publisher = busClient
	}
	api := server.New(r.cfg, pipe, cache, transcriber, st, publisher, runner, r.logger)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	// Warm the voice record so the first request does not pay for
	// discovery.
	runner.Submit("voice-warmup", func(ctx context.Context) error {
		_, err := cache.Get(ctx, false)
		return err
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("engine", r.cfg.Engine.Mode),
		slog.Bool("bus", r.cfg.Bus.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildSynthesizer(cfg config.EngineConfig) (engine.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return engine.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return engine.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
}

func buildTranscriber(cfg config.TranscriberConfig) (engine.Transcriber, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "exec":
		return engine.NewExecTranscriber(cfg.Command, cfg.ModelPath)
	default:
		return engine.NewMockTranscriber(), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
