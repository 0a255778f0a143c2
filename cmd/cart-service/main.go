package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/app"
	"github.com/vladislavdragonenkov/shopcart/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервис корзин остановлен")
}

// run читает конфигурацию, настраивает логгер и блокируется до остановки приложения.
func run(ctx context.Context, envFiles ...string) error {
	cfg, err := app.LoadConfig(envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.ConfigureLogger(cfg)

	v, commit, date := version.Info()
	log.WithFields(log.Fields{
		"version":      v,
		"commit":       commit,
		"build_date":   date,
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"events":       cfg.EventsBroker,
	}).Info("запускаем сервис корзин")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
