package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackzampolin/scanline/internal/pipeline"
)

// Exit statuses beyond the generic failure.
const (
	exitExhausted   = 2
	exitInterrupted = 130
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}

// exitCode lets scripts tell an unreadable page apart from other failures.
func exitCode(err error) int {
	var ex *pipeline.ExhaustedError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ex):
		return exitExhausted
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}
