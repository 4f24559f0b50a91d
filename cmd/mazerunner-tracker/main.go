package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/mazerunner-sdk/internal/config"
	"github.com/invisible-tech/mazerunner-sdk/internal/detection"
	"github.com/invisible-tech/mazerunner-sdk/internal/server"
	"github.com/invisible-tech/mazerunner-sdk/internal/tracker"
	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)

	if err := config.LoadDotEnv(""); err != nil {
		log.WithError(err).Fatal("Failed to load .env")
	}
	cfg := config.DefaultTrackerConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mazerunner.NewClient(ctx, cfg.Connection, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MazeRunner")
	}
	defer client.Close()

	engine, err := detection.LoadEngine(cfg.RulesFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load detection rules")
	}

	t := tracker.New(cfg, client, engine, log)
	t.Start(ctx)

	srv := server.New(server.Options{Addr: cfg.HTTPAddr, Name: "mazerunner-tracker", Alerts: t}, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Tracker server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down tracker")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()
	_ = srv.Shutdown(shutdownCtx)
}
