package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/Zaiknown/chat-project/internal/adapters/http"
	"github.com/Zaiknown/chat-project/internal/adapters/ws"
	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/config"
	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer cleanup()

	presence := core.NewPresence()
	bus := core.NewBus()
	directory := chat.NewDirectory(store)
	moderation := chat.NewModeration(store)
	roster := chat.NewRoster(store, presence)

	ctl := ws.NewController(cfg, store, directory, moderation, roster, presence, bus)
	handlers := router.NewHandlers(cfg, store, directory, presence, bus)

	r := router.SetupRouter(ctx, cfg, handlers, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chat server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	if cfg.DBDriver == "memory" {
		return storage.NewMemStore(), func() {}, nil
	}
	db, err := storage.Open(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
