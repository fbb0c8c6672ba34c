package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torchverso/ai"
	"torchverso/config"
	"torchverso/handlers"
	"torchverso/repository"
	"torchverso/service"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		return err
	}

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	repo, err := repository.New(cfg.StoreDriver, db)
	if err != nil {
		return err
	}
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	var store service.PresenceStore
	if cfg.RedisAddr != "" {
		rdb, err := config.InitRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		store = repository.NewRedisPresence(rdb, logger)
	} else {
		logger.Info("REDIS_ADDR not set, presence stays in process")
		store = repository.NewMemoryPresence()
	}

	brain := ai.NewClient(cfg.GeminiAPIKey, cfg.GeminiEndpoint, logger)
	svc, err := service.NewService(repo, store, cfg.JWTSecret, tuning, logger, service.WithBrain(brain))
	if err != nil {
		return err
	}

	r := mux.NewRouter()
	handlers.NewHandler(svc, logger).Register(r)

	srv := http.Server{
		Handler:      r,
		Addr:         ":" + cfg.ServerPort,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go svc.ExpireIdleLoop(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("store", cfg.StoreDriver),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	svc.Close(shutdownCtx)
	return nil
}
