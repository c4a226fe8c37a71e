package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gadgethost/bridge/internal/config"
	"github.com/rs/zerolog/log"
)

// Run serves handler until the process receives an interrupt or termination
// signal, then shuts down gracefully: in-flight requests get the configured
// shutdown timeout to complete, after which the registered shutdown hooks
// run regardless.
func Run(ctx context.Context, cfg config.ServerConfig, handler http.Handler, hooks *ShutdownHooks) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// startup failure: hooks still run so partial initialization is
		// released
		hooks.Execute(ctx)
		return fmt.Errorf("server failed: %w", err)

	case <-signalCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}

	hooks.Execute(shutdownCtx)

	if serveResult := <-serveErr; serveResult != nil && !errors.Is(serveResult, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", serveResult)
	}

	return err
}
