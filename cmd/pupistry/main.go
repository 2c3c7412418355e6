// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command pupistry builds versioned puppet code artifacts and installs them
// on agents.
//
// Usage:
//
//	pupistry build [--dry-run]
//	pupistry list
//	pupistry install [version] [--dest dir]
//	pupistry installed [--dest dir]
//	pupistry watch
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// safe defaults until the configuration is loaded
	log.Configure(log.Config{Level: "info", Output: stderr, Version: version.Version})

	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(stderr, "Error: %v\n\n", uerr.Err)
		uerr.cmd.SetOut(stderr)
		_ = uerr.cmd.Usage()
		return exitUsage
	}

	logger := log.WithComponent("cli")
	logger.WithLevel(zerolog.FatalLevel).
		Err(err).
		Str(log.FieldEvent, "cli.command_failed").
		Msg("command failed")
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}
