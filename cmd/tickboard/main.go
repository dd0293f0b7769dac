package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tickboard/config"
	"tickboard/internal/feed/board"
	"tickboard/internal/metrics"
	"tickboard/internal/server"
	"tickboard/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.String("config", "", "path to config.yaml (default: search ./config and .)")
	pflag.Parse()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := board.New(cfg, log)
	if err != nil {
		log.Fatal("failed to build board", zap.Error(err))
	}

	srv := server.New(cfg.HTTP, b, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return srv.Start(ctx) })

	log.Info("tickboard started", zap.String("feed", cfg.Feed.URL), zap.String("addr", cfg.HTTP.Addr))

	if err := g.Wait(); err != nil {
		log.Error("tickboard stopped with error", zap.Error(err))
		return
	}
	log.Info("tickboard stopped")
}
