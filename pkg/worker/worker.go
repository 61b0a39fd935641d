package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/harun/ranya-voice/internal/config"
	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/rs/zerolog"
)

// DefaultShutdownTimeout bounds the metrics server shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// EntrypointFunc runs one job. It should block until ctx is done.
type EntrypointFunc func(ctx context.Context, job *JobContext) error

// PrewarmFunc prepares process-wide resources before the first job.
type PrewarmFunc func(proc *Process) error

// WorkerOptions configures Run.
type WorkerOptions struct {
	Entrypoint EntrypointFunc
	// Prewarm is optional; nil skips the prewarm phase.
	Prewarm PrewarmFunc

	Config          *config.Config
	Logger          zerolog.Logger
	MetricsAddr     string
	ShutdownTimeout time.Duration
	// HandleSignals cancels the job on SIGINT or SIGTERM.
	HandleSignals bool
}

// Process holds values produced by Prewarm for use by jobs.
type Process struct {
	mu       sync.RWMutex
	userdata map[string]interface{}
}

func newProcess() *Process {
	return &Process{userdata: make(map[string]interface{})}
}

// Set stores a value.
func (p *Process) Set(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userdata[key] = value
}

// Get returns a stored value.
func (p *Process) Get(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.userdata[key]
	return v, ok
}

// JobContext describes the running job.
type JobContext struct {
	ID        string
	Room      string
	StartedAt time.Time
	Config    *config.Config
	Logger    zerolog.Logger
	Proc      *Process
}

// Run executes one job: prewarm, then the entrypoint, serving /metrics and
// /healthz while it runs. A job stopped by cancellation returns nil.
func Run(ctx context.Context, opts WorkerOptions) error {
	if opts.Entrypoint == nil {
		return fmt.Errorf("worker entrypoint is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	observability.EnsureRegistered()

	if opts.HandleSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	job := &JobContext{
		ID:        uuid.NewString(),
		Room:      cfg.LiveKit.Room,
		StartedAt: time.Now(),
		Config:    cfg,
		Proc:      newProcess(),
	}
	ctx = tracing.NewJobContext(ctx, job.ID, job.Room)
	job.Logger = tracing.LoggerFromContext(ctx, opts.Logger)
	logger := job.Logger

	if opts.Prewarm != nil {
		start := time.Now()
		if err := opts.Prewarm(job.Proc); err != nil {
			return fmt.Errorf("prewarm failed: %w", err)
		}
		logger.Info().Dur("duration", time.Since(start)).Msg("Prewarm completed")
	}

	var srv *http.Server
	if opts.MetricsAddr != "" {
		ln, err := net.Listen("tcp", opts.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", opts.MetricsAddr, err)
		}
		srv = &http.Server{Handler: Handler(job), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")
	}

	logger.Info().Str("room", job.Room).Msg("Job started")
	err := opts.Entrypoint(ctx, job)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Msg("Metrics server shutdown failed")
		}
		cancel()
	}

	if err != nil && !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		logger.Error().Err(err).Msg("Job failed")
		return fmt.Errorf("job %s failed: %w", job.ID, err)
	}

	logger.Info().Dur("uptime", time.Since(job.StartedAt)).Msg("Job finished")
	return nil
}

// Handler serves /metrics and /healthz for a job.
func Handler(job *JobContext) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"job_id": job.ID,
			"room":   job.Room,
			"uptime": time.Since(job.StartedAt).String(),
		})
	})
	return mux
}
