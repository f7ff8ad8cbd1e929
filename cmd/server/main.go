package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Canvas/internal/adapters/http"
	"github.com/dkeye/Canvas/internal/adapters/imagefile"
	"github.com/dkeye/Canvas/internal/app"
	"github.com/dkeye/Canvas/internal/config"
)

func main() {
	// SIGUSR1/2 come from process managers restarting us; the canvas is flushed on those too.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
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

	store := imagefile.NewStore(nil, cfg.CanvasPath, cfg.SnapshotDir)
	canvas := app.NewCanvas(app.CanvasConfig{
		Grid:   store.LoadGrid(cfg.Width, cfg.Height),
		Store:  store,
		Policy: app.SimplePolicy{},
		Secret: cfg.Secret,
		Observer: func(err error) {
			log.Error().Err(err).Str("module", "main").Msg("canvas error")
		},
	})
	if cfg.Secret == "" {
		log.Warn().Msg("no API secret configured, save and reset are disabled")
	}

	r := router.SetupRouter(ctx, cfg, canvas)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	canvas.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Canvas server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return canvas.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
