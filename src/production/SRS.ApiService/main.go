package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.ApiService/router"
	container "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Container"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting sensor registry service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctr.StartIngestor(ctx); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT ingestor")
	}

	gin.SetMode(config.Server.Mode)
	engine := router.New(router.Dependencies{
		Config:     config,
		Logger:     logger,
		Metrics:    ctr.GetMetrics(),
		SensorRepo: ctr.GetSensorRepository(),
		MQTT:       ctr.GetIngestor(),
	})

	port := config.Server.Port

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      engine,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("port", port).Info("Serveur démarré sur le port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
	if err := ctr.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Container shutdown failed")
	}
	cancel()
}
