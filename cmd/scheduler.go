package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"job-trigger-portal/internal/repository"
	"job-trigger-portal/internal/scheduler"
	"job-trigger-portal/pkg/logger"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the dispatch scheduler process",
	Run:   RunScheduler,
}

func RunScheduler(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency()
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	if err := appDep.cfg.ValidateScheduler(); err != nil {
		log.Fatalf("Invalid scheduler configuration: %v", err)
	}

	repo := repository.NewRepository(appDep.db.DB)
	sched := scheduler.New(appDep.cfg, appDep.log, repo, appDep.notifier)

	if err := sched.Run(ctx); err != nil {
		appDep.log.Error("Scheduler terminated with error", logger.ErrorField(err))
		_ = appDep.Close()
		os.Exit(1)
	}
}
