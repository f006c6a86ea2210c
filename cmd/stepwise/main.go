package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stepwise-engine/stepwise/internal/engine"
	"github.com/stepwise-engine/stepwise/internal/integrations"
	"github.com/stepwise-engine/stepwise/internal/logging"
	"github.com/stepwise-engine/stepwise/internal/scheduler"
	"github.com/stepwise-engine/stepwise/internal/store"
	"github.com/stepwise-engine/stepwise/internal/templates"
	"github.com/stepwise-engine/stepwise/internal/validation"
	"github.com/stepwise-engine/stepwise/internal/webhook"
	"github.com/stepwise-engine/stepwise/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stepwise:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	var dispatcher webhook.Dispatcher
	if cfg.WebhookLive {
		dispatcher = webhook.NewHTTPDispatcher(webhook.HTTPDispatcherConfig{})
	}

	eng := engine.NewEngine(engine.Options{
		Store:         st,
		Dispatcher:    dispatcher,
		MaxConcurrent: cfg.PoolSize,
		Logger:        logger,
	})
	defer eng.Shutdown()

	registerBuiltins(eng, logger)

	if cfg.TemplateDir != "" {
		if err := loadTemplates(eng, cfg.TemplateDir, logger); err != nil {
			return err
		}
	}

	eng.AddCallback(func(exec *schema.Execution, event string) {
		logger.Info("execution event",
			"execution_id", exec.ID,
			"template_id", exec.TemplateID,
			"event", event,
			"status", string(exec.Status))
	})

	sched := scheduler.NewScheduler(eng, logger)
	if cfg.SchedulerTick > 0 {
		sched.SetInterval(time.Duration(cfg.SchedulerTick) * time.Second)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// One-shot mode: stepwise run <template-id> [owner-id]
	if len(os.Args) > 2 && os.Args[1] == "run" {
		owner := cfg.OwnerID
		if len(os.Args) > 3 {
			owner = os.Args[3]
		}
		return runOnce(ctx, eng, os.Args[2], owner, logger)
	}

	logger.Info("stepwise engine ready", "pool_size", cfg.PoolSize)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.MemoryStore {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.NewLibSQLStore("file:" + cfg.DBPath)
}

func registerBuiltins(eng *engine.Engine, logger *slog.Logger) {
	policy := schema.DefaultRetryPolicy()
	eng.Integrations().Register("sms", integrations.SMS(logger), policy)
	eng.Integrations().Register("email", integrations.Email(logger), policy)
	eng.Integrations().Register("transform", integrations.NewTransformer().Handler(), policy)
}

func loadTemplates(eng *engine.Engine, dir string, logger *slog.Logger) error {
	validator, err := validation.NewTemplateValidator()
	if err != nil {
		return err
	}
	tpls, err := templates.LoadDir(dir)
	if err != nil {
		return err
	}
	for _, tpl := range tpls {
		if err := validator.ValidateTemplate(tpl); err != nil {
			return fmt.Errorf("template %s: %w", tpl.ID, err)
		}
		if err := eng.Templates().Register(tpl); err != nil {
			return err
		}
		logger.Info("template registered", "template_id", tpl.ID, "steps", len(tpl.Steps))
	}
	return nil
}

// runOnce starts a single execution and polls until it reaches a terminal
// status or the context is cancelled.
func runOnce(ctx context.Context, eng *engine.Engine, templateID, ownerID string, logger *slog.Logger) error {
	id, err := eng.Start(ctx, templateID, ownerID, map[string]any{"source": "cli"})
	if err != nil {
		return err
	}
	logger.Info("execution started", "execution_id", id)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			exec, err := eng.GetStatus(ctx, id)
			if err != nil {
				return err
			}
			if exec.Status.Terminal() {
				logger.Info("execution finished",
					"execution_id", id,
					"status", string(exec.Status),
					"steps", len(exec.StepResults),
					"error", exec.ErrorMessage)
				if exec.Status == schema.StatusFailed {
					return fmt.Errorf("execution failed: %s", exec.ErrorMessage)
				}
				return nil
			}
		}
	}
}
