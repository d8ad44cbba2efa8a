// internal/appshell/shell.go

// Package appshell is the shared process entry for the hazpost binaries:
// it owns signal handling and the final exit code so the app layers stay
// testable as plain functions.
package appshell

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// RunFunc is an app entry point: argv (without the program name) in,
// exit code out. Codes follow the hazpost convention: 0 success,
// 1 runtime or partial failure, 2 usage error, 3 output write error.
type RunFunc func(ctx context.Context, argv []string, stdout, stderr io.Writer) int

// Main wires run to the real process: SIGINT/SIGTERM cancel the context,
// an empty command line shows help, and a run cancelled by signal exits
// with the conventional 130.
func Main(run RunFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	argv := os.Args[1:]
	if len(argv) == 0 {
		argv = []string{"-h"}
	}

	code := run(ctx, argv, os.Stdout, os.Stderr)
	if ctx.Err() != nil && code == 0 {
		code = 130
	}

	stop()
	os.Exit(code)
}
