package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	server "github.com/kazz187/devguild/internal"
	"github.com/kazz187/devguild/internal/analyzer"
	"github.com/kazz187/devguild/internal/assignment"
	assignmentrepo "github.com/kazz187/devguild/internal/assignment/repositoryimpl"
	"github.com/kazz187/devguild/internal/config"
	"github.com/kazz187/devguild/internal/database"
	"github.com/kazz187/devguild/internal/eligibility"
	"github.com/kazz187/devguild/internal/eventbus"
	"github.com/kazz187/devguild/internal/leaderboard"
	"github.com/kazz187/devguild/internal/orchestrator"
	"github.com/kazz187/devguild/internal/payment"
	"github.com/kazz187/devguild/internal/payment/processorimpl"
	"github.com/kazz187/devguild/internal/progress"
	"github.com/kazz187/devguild/internal/pushnotification"
	pushsubrepo "github.com/kazz187/devguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/devguild/internal/slot"
	slotrepo "github.com/kazz187/devguild/internal/slot/repositoryimpl"
	"github.com/kazz187/devguild/internal/task"
	taskrepo "github.com/kazz187/devguild/internal/task/repositoryimpl"
	"github.com/kazz187/devguild/internal/workspace"
	"github.com/kazz187/devguild/pkg/clog"
	"github.com/kazz187/devguild/pkg/storage"
)

var (
	app = kingpin.New("devguild-server", "Task assignment and workspace provisioning server")

	serveCmd   = app.Command("serve", "Run the HTTP API").Default()
	migrateCmd = app.Command("migrate", "Create or update SQL tables and exit")
)

type repositories struct {
	tasks       task.Repository
	assignments assignment.Repository
	payments    assignment.PaymentRepository
	slots       slot.Repository
	db          *gorm.DB
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	switch command {
	case migrateCmd.FullCommand():
		err = migrate(env)
	default:
		err = serve(env)
	}
	if err != nil {
		slog.Error("exiting", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var w io.Writer = os.Stderr
	if env.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   env.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(w, clog.WithLevel(level), clog.WithColor(env.LogFile == ""))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return storage.NewLocalStorage(env.BaseDir)
	}
}

func newRepositories(store storage.Storage, env *config.DatabaseEnv) (*repositories, error) {
	switch env.StoreType {
	case "sql":
		db, err := database.Open(env)
		if err != nil {
			return nil, err
		}
		tasks := taskrepo.NewGormRepository(db)
		assignments := assignmentrepo.NewGormRepository(db)
		payments := assignmentrepo.NewGormPaymentRepository(db)
		slots := slotrepo.NewGormRepository(db)
		if err := database.Migrate(db, tasks, assignments, payments, slots); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return &repositories{tasks: tasks, assignments: assignments, payments: payments, slots: slots, db: db}, nil
	case "yaml", "":
		return &repositories{
			tasks:       taskrepo.NewYAMLRepository(store),
			assignments: assignmentrepo.NewYAMLRepository(store),
			payments:    assignmentrepo.NewYAMLPaymentRepository(store),
			slots:       slotrepo.NewYAMLRepository(store),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", env.StoreType)
	}
}

func migrate(env *config.Env) error {
	if env.StoreType != "sql" {
		slog.Info("nothing to migrate", "store_type", env.StoreType)
		return nil
	}
	repos, err := newRepositories(nil, config.DatabaseEnvFromEnv(env))
	if err != nil {
		return err
	}
	slog.Info("migration finished")
	return database.Close(repos.db)
}

func serve(env *config.Env) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := newStorage(ctx, config.StorageEnvFromEnv(env))
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	// Local workspaces get their own root, separate from the record store.
	workspaceStore := store
	if env.StorageEnv.Type != "s3" {
		workspaceStore, err = storage.NewLocalStorage(env.WorkspaceEnv.Root)
		if err != nil {
			return fmt.Errorf("failed to create workspace storage: %w", err)
		}
	}

	repos, err := newRepositories(store, config.DatabaseEnvFromEnv(env))
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(repos.db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	bus := eventbus.New()

	// Workspace server pool
	workspaceEnv := config.WorkspaceEnvFromEnv(env)
	if err := slot.SyncPoolFile(ctx, repos.slots, workspaceEnv.PoolFile); err != nil {
		return err
	}
	allocator := slot.NewAllocator(repos.slots)

	// Repository analysis
	inner, err := analyzer.New(ctx, config.AnalyzerEnvFromEnv(env))
	if err != nil {
		return err
	}
	repoAnalyzer := analyzer.NewBestEffort(inner, env.AnalyzerEnv.Timeout)

	provisioner := workspace.NewProvisioner(workspaceStore)
	orch := orchestrator.New(
		repos.tasks,
		repos.assignments,
		eligibility.NewEvaluator(repos.assignments),
		allocator,
		repoAnalyzer,
		provisioner,
		bus,
	)
	progressService := progress.NewService(repos.assignments, allocator, provisioner, bus)

	paymentEnv := config.PaymentEnvFromEnv(env)
	processor := processorimpl.NewRESTProcessor(paymentEnv.BaseURL, paymentEnv.ClientID, paymentEnv.ClientSecret, paymentEnv.Timeout)
	paymentEngine := payment.NewEngine(repos.assignments, repos.payments, processor, paymentEnv.Currency, paymentEnv.Timeout, bus)

	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, repos.tasks, pushSender)

	srv := server.NewServer(
		env,
		task.NewServer(repos.tasks, repos.assignments, bus),
		orchestrator.NewServer(orch),
		assignment.NewServer(repos.assignments, repos.payments),
		progress.NewServer(progressService, repos.assignments),
		payment.NewServer(paymentEngine),
		leaderboard.NewServer(leaderboard.NewService(repos.assignments, repos.payments)),
		slot.NewHTTPServer(allocator),
		pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender),
	)

	go pushDispatcher.Start(ctx)
	if paymentEnv.AutoSettle {
		go payment.NewDispatcher(paymentEngine, bus, payment.WithSweepInterval(paymentEnv.SweepEvery)).Start(ctx)
	}
	if workspaceEnv.WatchPool {
		go slot.NewPoolWatcher(repos.slots, workspaceEnv.PoolFile).Start(ctx)
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}
