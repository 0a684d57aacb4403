// cmd/main.go is the application entry point.
// It wires together all layers, starts the reconciliation scheduler and
// the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/config"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/database"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/handler"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/metrics"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/repository"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/runlog"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/scheduler"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass, print its summary and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	if err := run(cfg, log, *once); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// stores bundles the two repositories behind whichever backend is selected.
type stores struct {
	events        service.EventRepository
	registrations service.RegistrationRepository
	close         func()
}

func run(cfg *config.Config, log *logger.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Stores ─────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	runs, closeRuns, err := openRunLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRuns()

	// ── 2. Lifecycle engine ───────────────────────────────────────────────
	norm, err := cfg.Normalizer()
	if err != nil {
		return err
	}
	counted, err := cfg.CountedSet()
	if err != nil {
		return err
	}
	engine, err := lifecycle.New(st.events, st.registrations, norm,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
		lifecycle.WithCountedSet(counted),
		lifecycle.WithRecorder(runs),
		lifecycle.WithConcurrency(cfg.ReconcileConcurrency),
	)
	if err != nil {
		return fmt.Errorf("lifecycle engine: %w", err)
	}

	if once {
		return runOnce(ctx, engine, cfg.ReconcileTimeout)
	}

	// ── 3. Scheduler ──────────────────────────────────────────────────────
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(cfg.ReconcileSchedule, engine, log, cfg.ReconcileTimeout, loc)
	if err != nil {
		return err
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// ── 4. HTTP ───────────────────────────────────────────────────────────
	svc := service.NewEventService(st.events, st.registrations, engine, log)
	router := handler.NewRouter(
		handler.NewEventHandler(svc),
		handler.NewReconcileHandler(engine, runs, log),
		log,
		cfg.RequestTimeout,
		promhttp.Handler(),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	// Block until SIGINT or SIGTERM.
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			stop()
			<-schedDone
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-schedDone
	log.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		events, regs := repository.NewMemory()
		log.Warn("using in-memory store; data is lost on exit")
		return &stores{events: events, registrations: regs, close: func() {}}, nil
	}

	pool, err := database.NewPool(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info("connected to PostgreSQL")
	return newPostgresStores(pool), nil
}

func newPostgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		events:        repository.NewEventRepository(pool),
		registrations: repository.NewRegistrationRepository(pool),
		close:         pool.Close,
	}
}

func openRunLog(ctx context.Context, cfg *config.Config, log *logger.Logger) (runlog.Store, func(), error) {
	if cfg.RedisURL == "" {
		return runlog.NewMemory(), func() {}, nil
	}
	client, err := runlog.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("run log: %w", err)
	}
	log.Info("connected to Redis")
	return runlog.NewRedis(client, cfg.RunHistoryTTL), func() { _ = client.Close() }, nil
}

func runOnce(ctx context.Context, engine *lifecycle.Engine, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
