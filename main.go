package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cortexa-go/internal/assessment"
	"cortexa-go/internal/backend"
	"cortexa-go/internal/battery"
	"cortexa-go/internal/config"
	"cortexa-go/internal/database"
	logger "cortexa-go/internal/logging"
	"cortexa-go/internal/repository"
	"cortexa-go/internal/router"
	"cortexa-go/internal/services"

	"go.uber.org/zap"
)

func main() {
	// Load configuration first; the logger is configured from it.
	v, err := config.Init(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	conf := config.Get()
	log, err := logger.Init(conf.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	config.Watch(v, log)
	log.Info("Configuration loaded successfully")

	db, err := database.Init(conf.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	content, err := battery.LoadContent(conf.Battery.ContentFile)
	if err != nil {
		log.Fatal("Failed to load battery content", zap.Error(err))
	}

	client := backend.NewClient(conf.Backend.URL, conf.Backend.Timeout, log.Named("backend"))
	ledger := repository.NewLedger(db, client, log.Named("ledger"))

	// Each run reads the current configuration, so reloaded timings apply to new runs.
	registry := services.NewRegistry(log, func() assessment.Config {
		conf := config.Get()
		return assessment.Config{
			Battery:       conf.Battery.Tests(content.Apply(battery.DefaultConfig())),
			Speech:        conf.Battery.Capture(),
			Submitter:     ledger,
			SubmitTimeout: conf.Backend.Timeout,
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaper := services.NewReaper(log, registry, conf.Server.ReapInterval, func() time.Duration {
		return config.Get().Server.RunTTL
	})
	reaper.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + conf.Server.Port,
		Handler: router.Setup(log, registry, conf.Server),
	}
	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	registry.Close()
}
