package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexpay/payment-switch/internal/config"
	"github.com/cortexpay/payment-switch/internal/connector"
	"github.com/cortexpay/payment-switch/internal/connector/aci"
	"github.com/cortexpay/payment-switch/internal/connector/fiserv"
	"github.com/cortexpay/payment-switch/internal/connector/globalpay"
	"github.com/cortexpay/payment-switch/internal/connector/nexinets"
	"github.com/cortexpay/payment-switch/internal/connector/noon"
	"github.com/cortexpay/payment-switch/internal/handlers"
	"github.com/cortexpay/payment-switch/internal/middleware"
)

func buildRegistry(cfg *config.ConnectorsConfig) (*connector.Registry, error) {
	registry := connector.NewRegistry()
	for _, c := range []connector.Connector{
		aci.New(cfg.Aci.BaseURL),
		fiserv.New(cfg.Fiserv.BaseURL),
		globalpay.New(cfg.Globalpay.BaseURL),
		nexinets.New(cfg.Nexinets.BaseURL),
		noon.New(cfg.Noon.BaseURL),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	registry, err := buildRegistry(&cfg.Connectors)
	if err != nil {
		logger.Error("failed to build connector registry", "error", err)
		os.Exit(1)
	}

	logger.Info("starting payment switch",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
		"connectors", registry.Names(),
	)

	h := handlers.NewHandlers(registry, logger)

	mux := http.NewServeMux()
	h.Register(mux)

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
