// Package bot wires the civic reporting service together and manages the
// lifecycle of its HTTP API and task scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/civicbot/internal/config"
)

// Waiter is background work that must finish before the process exits.
type Waiter interface {
	Wait()
}

// Bot runs the HTTP API and the scheduler until its context is cancelled.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	server     *http.Server
	scheduler  *Scheduler
	background Waiter
}

// NewBot creates the orchestrator. background may be nil.
func NewBot(logger *slog.Logger, cfg *config.Config, handler http.Handler, scheduler *Scheduler, background Waiter) *Bot {
	return &Bot{
		logger: logger.With("component", "bot_orchestrator"),
		cfg:    cfg,
		server: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		scheduler:  scheduler,
		background: background,
	}
}

// Run serves until ctx is cancelled or a component fails, then drains HTTP,
// stops the scheduler and waits for background pipeline work.
func (b *Bot) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.server.Addr, err)
	}
	return b.serve(ctx, ln)
}

func (b *Bot) serve(ctx context.Context, ln net.Listener) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("HTTP API listening", "addr", ln.Addr().String())
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, draining HTTP API...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), b.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("HTTP API did not drain cleanly", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		if b.scheduler == nil {
			return nil
		}
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()

	if b.background != nil {
		b.logger.Info("Waiting for background pipeline work...")
		b.background.Wait()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Service stopped due to error", "error", err)
		return err
	}
	b.logger.Info("Service stopped gracefully")
	return nil
}
