package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"job-trigger-portal/internal/repository"
	"job-trigger-portal/internal/worker"
	"job-trigger-portal/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a job execution worker process",
	Run:   RunWorker,
}

func RunWorker(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency()
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	if err := appDep.cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid worker configuration: %v", err)
	}

	executor, err := worker.NewScriptExecutor(
		appDep.cfg.Worker.ScriptRoot,
		appDep.cfg.Worker.JobTimeout,
		appDep.cfg.Worker.MaxOutputBytes,
		appDep.log,
	)
	if err != nil {
		log.Fatalf("Invalid script root: %v", err)
	}

	repo := repository.NewRepository(appDep.db.DB)
	w := worker.New(appDep.cfg, appDep.log, repo, executor)

	if err := w.Run(ctx); err != nil {
		appDep.log.Error("Worker terminated with error", logger.ErrorField(err))
		_ = appDep.Close()
		os.Exit(1)
	}
}
