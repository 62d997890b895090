package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcfield/jobforge/internal/observability"
	"github.com/arcfield/jobforge/internal/server"
	"github.com/arcfield/jobforge/internal/server/handlers"
	"github.com/arcfield/jobforge/pkg/appstate"
	"github.com/arcfield/jobforge/pkg/jobstore"
	"github.com/arcfield/jobforge/pkg/orchestrator"
	"github.com/arcfield/jobforge/pkg/reconciler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job orchestrator and its HTTP API",
	Long: `Run the orchestrator daemon.

Startup order matters: durable job records are recovered and missed state
patches replayed before the API starts accepting requests. Child processes
are left running across a graceful shutdown; the next start re-adopts them.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Override server host")
	serveCmd.Flags().Int("port", 0, "Override server port")
	serveCmd.Flags().Int("max-concurrent", 0, "Override max concurrent jobs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := observability.ServerLogger

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if mc, _ := cmd.Flags().GetInt("max-concurrent"); mc > 0 {
		cfg.Jobs.MaxConcurrent = mc
	}

	store := jobstore.NewStore(cfg.JobsDir())
	state := appstate.NewStore(cfg.StateDir())
	if err := state.Load(); err != nil {
		return err
	}
	recon := reconciler.New(store, state, logger)

	mgr := orchestrator.New(store, recon, orchestrator.Config{
		MaxConcurrent:     cfg.Jobs.MaxConcurrent,
		TerminateGrace:    cfg.Jobs.TerminateGrace,
		HeartbeatInterval: cfg.Jobs.HeartbeatInterval,
	}, logger)

	report, err := mgr.Recover()
	if err != nil {
		return err
	}
	logger.Info("recovery complete",
		zap.Int("loaded", report.Loaded),
		zap.Int("relaunched", report.Relaunched),
		zap.Int("adopted", report.Adopted),
		zap.Int("orphaned", report.Orphaned))

	jobsHandler := handlers.NewJobsHandler(mgr, logger, cfg.Server.SubmitRate)
	srv := server.New(server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, jobsHandler, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	// Monitors get a short window to persist whatever state they hold;
	// anything still running is picked up by the next recovery scan.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Warn("monitors still active at shutdown", zap.Error(err))
	}
	logger.Info("orchestrator stopped")
	return nil
}
