package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yield-vault/internal/config"
	"yield-vault/internal/feed"
	"yield-vault/internal/logging"
	"yield-vault/internal/vault"

	"go.uber.org/zap"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "vault event feed url")
	reconnect := flag.Duration("reconnect", 2*time.Second, "delay between reconnect attempts")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: *level})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := feed.NewClient(*url, *reconnect, log)
	defer client.Close()
	log.Info("following feed", zap.String("url", *url))
	err := client.Run(ctx, func(rec vault.Record) {
		fmt.Printf("%d %s caller=%s amount=%s shares=%s received=%s max_loss_bps=%d\n",
			rec.Seq, rec.Kind, rec.Caller, rec.Amount, rec.Shares, rec.Received, rec.MaxLossBps)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("feed stopped", zap.Error(err))
		os.Exit(1)
	}
}
