package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"ecoportal/internal/config"
	"ecoportal/internal/database"
	"ecoportal/internal/domain/projectmedia"
	"ecoportal/internal/domain/upload"
	"ecoportal/internal/pkg/jwt"
	"ecoportal/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	l := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Debug:  cfg.Debug,
	})
	if config.IsProdLike(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatal("connect database", "err", err)
	}
	if err := db.AutoMigrate(&projectmedia.ProjectMedia{}); err != nil {
		l.Fatal("migrate", "err", err)
	}

	storage, err := upload.OpenStorage(cfg.Upload)
	if err != nil {
		l.Fatal("upload storage unavailable", "dir", cfg.Upload.BaseDir, "err", err)
	}
	pipeline, err := upload.NewPipeline(storage, cfg.Upload, l)
	if err != nil {
		l.Fatal("upload policy", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepStaging(ctx, pipeline, cfg.StagingMaxAge, l)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: newRouter(routerDeps{
			Config:   cfg,
			Logger:   l,
			DB:       db,
			JWT:      jwt.New(cfg.JWTSecret, cfg.JWTTTL),
			Storage:  storage,
			Pipeline: pipeline,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv, "uploads", cfg.Upload.BaseDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server", "err", err)
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("shutdown", "err", err)
	}
}

// sweepStaging clears staged files orphaned by a previous crash, then keeps
// doing so once per maxAge. It also refreshes the stored-bytes gauge.
func sweepStaging(ctx context.Context, p *upload.Pipeline, maxAge time.Duration, l *log.Logger) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()
	for {
		if _, err := p.SweepStaging(ctx, maxAge); err != nil && ctx.Err() == nil {
			l.Warn("staging sweep", "err", err)
		}
		if _, err := p.Usage(ctx); err != nil && ctx.Err() == nil {
			l.Warn("usage scan", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
