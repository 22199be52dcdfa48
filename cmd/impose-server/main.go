// Command impose-server serves blending and data extraction over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"impose/internal/config"
	"impose/internal/logging"
	"impose/internal/server"
	"impose/internal/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	noCache := flag.Bool("no-cache", false, "run without the redis snapshot cache")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Log.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.L().Info("starting", zap.String("version", version.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache server.Cache
	if !*noCache {
		rc := server.NewRedisCache(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logging.L().Warn("redis unavailable, caching disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
			rc.Close()
		} else {
			logging.L().Info("redis connected", zap.String("addr", cfg.Redis.Addr))
			defer rc.Close()
			cache = rc
		}
	}

	if err := server.New(cfg, cache).Run(ctx); err != nil {
		logging.L().Fatal("server failed", zap.Error(err))
	}
}
