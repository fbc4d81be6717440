package cmd

import (
	"context"
	"fmt"
	"log"
	netHttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	deliveryHttp "job-trigger-portal/internal/delivery/http"
	"job-trigger-portal/internal/repository"
	"job-trigger-portal/internal/service"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/middleware"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the management API process",
	Run:   RunAPI,
}

func RunAPI(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency()
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	defer appDep.Close()

	repo := repository.NewRepository(appDep.db.DB)
	services := service.NewService(appDep.cfg, appDep.log, repo, appDep.cache)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewRateLimiterMiddleware(appDep.cfg.API.RequestsPerSecond, appDep.cfg.API.RequestBurst))

	handler := deliveryHttp.NewHttpAPIHandler(e, goValidator.New(), services)
	handler.SetupRoutes()

	go func() {
		address := fmt.Sprintf(":%d", appDep.cfg.API.Port)
		appDep.log.Info("Starting management API", logger.IntField("port", appDep.cfg.API.Port))
		if err := e.Start(address); err != nil && err != netHttp.ErrServerClosed {
			log.Fatalf("Failed to start management API: %v", err)
		}
	}()

	<-ctx.Done()
	appDep.log.Info("Shutting down management API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appDep.log.Error("Error stopping management API", logger.ErrorField(err))
	}
}
