package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fingerspell/fingerspell-core/internal/bus"
	"github.com/fingerspell/fingerspell-core/internal/classifier"
	"github.com/fingerspell/fingerspell-core/internal/config"
	"github.com/fingerspell/fingerspell-core/internal/natsserver"
	"github.com/fingerspell/fingerspell-core/internal/transcript"
	"github.com/fingerspell/fingerspell-core/internal/typing"
)

// Runtime assembles the daemon: bus, transcript store, classifier backend,
// typing service and the HTTP surface.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	typing *typing.Service
	ready  atomic.Bool
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

	telemetryShutdown, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := transcript.Open(ctx, r.cfg.Transcript, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer store.Close()

	cls, err := r.buildClassifier()
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}
	defer cls.Close()

	r.typing = typing.NewService(ctx, r.cfg.Engine, r.cfg.Classifier, busClient, cls, store, r.logger)
	if err := r.typing.Start(); err != nil {
		return fmt.Errorf("failed to start typing service: %w", err)
	}
	defer r.typing.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("GET /v1/sessions/{id}/text", r.handleSessionText)
	mux.HandleFunc("GET /v1/engine/tuning", r.handleGetTuning)
	mux.HandleFunc("PUT /v1/engine/tuning", r.handlePutTuning)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsServer *http.Server
	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("runtime stopping")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	return g.Wait()
}

func (r *Runtime) buildClassifier() (classifier.Classifier, error) {
	switch r.cfg.Classifier.Mode {
	case "exec":
		return classifier.NewExecClassifier(r.cfg.Classifier)
	default:
		return classifier.NewMockClassifier(r.cfg.Classifier.Labels), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.typing != nil && r.typing.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleSessionText(w http.ResponseWriter, req *http.Request) {
	sessionID := req.PathValue("id")
	text, err := r.typing.SessionText(req.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"session_id": sessionID, "text": text})
}

func (r *Runtime) handleGetTuning(w http.ResponseWriter, _ *http.Request) {
	tv := r.typing.Tuning()
	writeJSON(w, map[string]any{
		"threshold": tv.Threshold,
		"hold_ms":   int(tv.Hold / time.Millisecond),
	})
}

func (r *Runtime) handlePutTuning(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Threshold *float64 `json:"threshold"`
		HoldMS    *int     `json:"hold_ms"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid tuning payload", http.StatusBadRequest)
		return
	}
	if body.Threshold != nil {
		r.typing.SetThreshold(*body.Threshold)
	}
	if body.HoldMS != nil {
		r.typing.SetHoldMS(*body.HoldMS)
	}
	tv := r.typing.Tuning()
	writeJSON(w, map[string]any{
		"threshold": tv.Threshold,
		"hold_ms":   int(tv.Hold / time.Millisecond),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
