package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// shutdownContext derives the context transfers run under. The first
// SIGINT/SIGTERM cancels it; a second one exits the process at once, so a
// stuck request cannot keep the command alive.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)

	go func() {
		<-ctx.Done()
		stop()

		if parent.Err() != nil {
			return
		}

		logger.Info("received signal, canceling transfers")

		again := make(chan os.Signal, 1)
		signal.Notify(again, shutdownSignals...)
		defer signal.Stop(again)

		select {
		case sig := <-again:
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
