// main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/bootstrap"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/httpserver"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/logger"
	"github.com/AI-Template-SDK/brand-visibility-workflows/workflows"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("dev.env"); err != nil {
			log.Printf("Note: No .env or dev.env file loaded: %v", err)
		} else {
			log.Printf("Loaded dev.env file for local development")
		}
	} else {
		log.Printf("Loaded .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	l, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	l.Infof("Environment: %s", cfg.Environment)
	l.Infof("Port: %s", cfg.Port)
	l.Infof("Dispatcher: %s", cfg.Dispatcher)

	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg, l)
	if err != nil {
		l.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer rt.Close()

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		l.Infof("Running in development mode - signing key verification disabled")
	}

	client, err := inngestgo.NewClient(inngestgo.ClientOpts{
		AppID:    httpserver.ServiceName,
		EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
		Env:      inngestgo.StrPtr(cfg.Environment),
	})
	if err != nil {
		l.Fatalf("Failed to create Inngest client: %v", err)
	}

	var dispatcher workflows.Dispatcher
	var local *workflows.LocalDispatcher
	if cfg.Dispatcher == "local" {
		local = workflows.NewLocalDispatcher(rt.Services.Pipeline, cfg.Pipeline.LocalConcurrency, l)
		dispatcher = local
	} else {
		dispatcher = workflows.NewInngestDispatcher(client, l)
	}

	reportProcessor := workflows.NewReportProcessor(rt.Services.Pipeline, l)
	reportProcessor.SetClient(client)
	reportProcessor.ProcessQuestionnaire()

	scheduledProcessor := workflows.NewScheduledProcessor(rt.Services.Status, dispatcher, cfg.Pipeline, l)
	scheduledProcessor.SetClient(client)
	scheduledProcessor.ResumeStalledReports()
	l.Infof("All processors initialized and functions registered")

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if local != nil {
		go scheduledProcessor.RunLocal(sweepCtx, cfg.Pipeline.StallAfter/2)
	}

	mode := gin.ReleaseMode
	if cfg.Environment == "development" {
		mode = gin.DebugMode
	}
	srv, err := httpserver.New(httpserver.Config{
		Logger:         l,
		Port:           cfg.Port,
		Mode:           mode,
		Environment:    cfg.Environment,
		Repos:          rt.Services.Repos,
		Status:         rt.Services.Status,
		Dispatcher:     dispatcher,
		InngestHandler: client.Serve(),
		MetricsHandler: rt.Metrics.Handler(),
	})
	if err != nil {
		l.Fatalf("Failed to create HTTP server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		l.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			l.Errorf("HTTP server stopped: %v", err)
		}
	}

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warnf("HTTP shutdown: %v", err)
	}
	if local != nil {
		if err := local.Shutdown(shutdownCtx); err != nil {
			l.Warnf("Local dispatcher shutdown: %v", err)
		}
	}
}
