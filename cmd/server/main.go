package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coderoomhq/coderoom-backend/internal/config"
	"github.com/coderoomhq/coderoom-backend/internal/exec"
	"github.com/coderoomhq/coderoom-backend/internal/httpapi"
	"github.com/coderoomhq/coderoom-backend/internal/hub"
	"github.com/coderoomhq/coderoom-backend/internal/room"
	"github.com/coderoomhq/coderoom-backend/internal/store"
)

func main() {
	_ = godotenv.Load() // dev convenience only

	cfg := config.Load()
	log := config.NewLogger(cfg.Env)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var saver hub.Saver
	if cfg.PGURL != "" {
		st, err := store.Open(cfg.PGURL)
		if err != nil {
			log.Fatal("snapshot store", zap.Error(err))
		}
		saver = st
		log.Info("snapshot store enabled")
	}

	runner := exec.NewClient(cfg.RunnerURL, cfg.ExecTimeout, log)
	h := hub.NewHub(ctx, room.Config{
		Grace:      cfg.RoomGrace,
		TermLogMax: cfg.TermLogMax,
	}, runner, saver, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server", zap.Error(err))
	}
}
