package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	api "menuqr/internal/order/api/http"
	"menuqr/internal/xpkg/config"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	mylog := logger.NewLogger("order-engine")

	cfg, err := config.Load(*configPath)
	if err != nil {
		mylog.Action("config_load_failed").Error("Failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg, metrics.NewRegistry(), mylog)
	if err := server.Run(ctx); err != nil {
		mylog.Action("server_failed").Error("Server terminated with error", err)
		os.Exit(1)
	}
}
