package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	internalhttp "github.com/barley-project/barley/internal/api/http"
	"github.com/barley-project/barley/internal/cert"
	"github.com/barley-project/barley/internal/seed"
	"github.com/barley-project/barley/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Barley Sower", "version", AppVersion)

	registry, err := newRegistry()
	if err != nil {
		slog.Error("Failed to initialise seed registry", "error", err)
		os.Exit(1)
	}

	services := &internalhttp.Services{
		Registry: registry,
		BootDir:  config.Server.BootDir,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

func newRegistry() (*seed.Registry, error) {
	address := config.Server.Address
	if address == "" {
		addr, err := detectAddress(config.Server.DnsmasqConf)
		if err != nil {
			return nil, err
		}
		address = addr.String()
		slog.Info("Detected bind address", "address", address, "dnsmasq_conf", config.Server.DnsmasqConf)
	}

	trust, err := store.Ensure(config.Server.DataDir)
	if err != nil {
		return nil, err
	}
	seeds, err := store.Ensure(config.Server.SeedDir)
	if err != nil {
		return nil, err
	}

	// machine.key is installed unencrypted, so no password source is needed.
	authority := cert.New(nil)
	registry := seed.NewRegistry(seeds, trust, authority, seed.Config{Address: address})

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}
	if err := registry.EnsureHostCA(hostname); err != nil {
		return nil, err
	}
	return registry, nil
}
