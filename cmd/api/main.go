package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"

	"priority-agent-backend/internal/agent"
	"priority-agent-backend/internal/api"
	"priority-agent-backend/internal/auth"
	"priority-agent-backend/internal/config"
	"priority-agent-backend/internal/dashboard"
	"priority-agent-backend/internal/db"
	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/logging"
	"priority-agent-backend/internal/metrics"
	"priority-agent-backend/internal/preferences"
	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/stress"
	"priority-agent-backend/internal/tasks"
)

type backends struct {
	tasks   tasks.Store
	weights preferences.WeightStore
	events  feedback.Log
	close   func() error
}

func openBackends(ctx context.Context, cfg *config.Config) (backends, error) {
	if cfg.DBDriver == "memory" {
		return backends{
			tasks:   tasks.NewMemoryStore(),
			weights: preferences.NewMemoryStore(),
			events:  feedback.NewMemoryLog(),
			close:   func() error { return nil },
		}, nil
	}

	database, err := db.Connect(ctx, db.Dialect(cfg.DBDriver), cfg.ConnString())
	if err != nil {
		return backends{}, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return backends{}, err
	}
	return backends{
		tasks:   tasks.NewSQLStore(database),
		weights: preferences.NewSQLStore(database),
		events:  feedback.NewSQLLog(database),
		close:   database.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := openBackends(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("open database", "driver", cfg.DBDriver, "err", err)
	}
	defer store.close()
	logger.Info("storage ready", "driver", cfg.DBDriver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	engine := cfg.Engine
	scorer := scoring.NewScorer(engine.Scoring)

	learner, err := preferences.NewLearner(engine.Preferences, engine.DefaultWeights, store.weights)
	if err != nil {
		logger.Fatal("preference learner", "err", err)
	}

	monitor, err := stress.NewMonitor(engine.Stress, scorer)
	if err != nil {
		logger.Fatal("stress monitor", "err", err)
	}
	monitor.OnTransition = func(session string, tr stress.Transition) {
		m.StressTransition(tr == stress.Entered)
		logger.Info("stress mode changed", "session", session, "high_stress", tr == stress.Entered)
	}

	advisor, err := agent.NewAdvisor(engine.Agent, agent.Deps{
		Store:   store.tasks,
		Scorer:  scorer,
		Learner: learner,
		Monitor: monitor,
		Events:  store.events,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("advisor", "err", err)
	}

	handler := api.NewRouter(api.Deps{
		Store:     store.tasks,
		Validator: tasks.NewValidator(),
		Advisor:   advisor,
		Dashboard: dashboard.New(store.tasks, scorer, monitor),
		Auth:      auth.New([]byte(cfg.JWTSecret), cfg.AuthRequired),
		Logger:    logger,
		Gatherer:  reg,
		Origins:   cfg.CORSOrigins,
	})

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("listen", "addr", cfg.HTTPAddr, "err", err)
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("API server is running", "addr", cfg.HTTPAddr, "max_conns", cfg.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
