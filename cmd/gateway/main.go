// Package main runs the standalone language model tools gateway that civicbot
// reaches when llm.provider is "gateway".
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/civicbot/internal/config"
	"github.com/edgard/civicbot/internal/llm"
	"github.com/edgard/civicbot/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	addr := flag.String("addr", ":8008", "Listen address")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	if cfg.LLM.Provider == "gateway" {
		log.Error("The gateway cannot forward to itself; choose openai, gemini or none")
		return 1
	}

	gw, err := llm.New(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize language model", "provider", cfg.LLM.Provider, "error", err)
		return 1
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           llm.NewServer(gw, cfg.LLM.Provider, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Gateway listening", "addr", *addr, "provider", cfg.LLM.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Gateway stopped due to error", "error", err)
		return 1
	}
	log.Info("Gateway stopped")
	return 0
}
