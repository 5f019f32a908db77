package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/app"
	"github.com/mozila9822/website-VOY-sub000/internal/common/config"
	"github.com/mozila9822/website-VOY-sub000/internal/common/logging"
	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
	"github.com/mozila9822/website-VOY-sub000/internal/web"
)

const (
	projectName = "voyage-booking-api"
)

func main() {
	shutdownTimeout := flag.Duration("shutdown-timeout", 15*time.Second, "グレースフルシャットダウンの待機時間")
	flag.Parse()

	// 設定の読み込み
	cfg, err := config.LoadConfig("")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.IsLocal())

	// X-Ray設定
	if cfg.EnableTracing {
		if err := tracing.Configure("1.0.0"); err != nil {
			logger.Fatalf("Failed to configure default X-Ray settings: %v", err)
		}
	}

	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v\nStack trace:\n%s", err, debug.Stack())
	}
	defer a.Close()

	if cfg.Admin.JWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET is not set, admin endpoints are not protected")
	}

	server := web.NewServer(web.Services{
		Settings:        a.Registry,
		Intents:         a.Broker,
		Bookings:        a.Ledger,
		Cards:           a.Cards,
		Reconciliations: a.Reconciliations,
	}, web.Options{
		AdminJWTSecret: cfg.Admin.JWTSecret,
		Idempotency:    a.Idempotency,
		Logger:         logger,
		EnableTracing:  cfg.EnableTracing,
		ServiceName:    projectName,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	// シグナルまたはエラーの待機
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.Errorf("HTTP server failed: %v", err)
			a.Close()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Failed to shut down HTTP server: %v", err)
	}
	logger.Info("HTTP server stopped")
}
