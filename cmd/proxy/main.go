package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/offline-cache-proxy/internal/config"
	"github.com/iTrooz/offline-cache-proxy/internal/logging"
	"github.com/iTrooz/offline-cache-proxy/internal/proxy"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	server, err := setup(configPath)
	if err != nil {
		logrus.Fatalf("Startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		_ = server.Close()
		logrus.Fatalf("Server failed: %v", err)
	}

	if err := server.Close(); err != nil {
		logrus.Errorf("Failed to close cache storage: %v", err)
	}
}

// setup loads the configuration, configures logging and builds the proxy
func setup(configPath string) (*proxy.Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := logging.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	server, err := proxy.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy server: %w", err)
	}
	return server, nil
}
