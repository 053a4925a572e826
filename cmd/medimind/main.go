// Package main is the MediMind CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"MediMind/internal/app"
	"MediMind/internal/config"
	"MediMind/internal/logging"
	"MediMind/internal/normalizer"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		os.Exit(runServe(os.Args[2:]))
	case "dispatch":
		os.Exit(runDispatch(os.Args[2:]))
	case "normalize":
		os.Exit(runNormalize(os.Args[2:], os.Stdin, os.Stdout))
	case "version", "--version", "-v":
		fmt.Printf("medimind version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: medimind <command> [flags]

Commands:
  serve       run the HTTP API and the reminder scheduler
  dispatch    send reminders for the current period once and print the report
  normalize   normalize an inference reply read from -file or stdin
  version     print the version

Configuration is read from .env, the YAML file in MEDIMIND_CONFIG and environment variables.
`)
}

func setup(debug bool) (config.Config, *zap.Logger) {
	cfg := config.Load()
	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	return cfg, logging.New(level, cfg.Logging.Format)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	noScheduler := fs.Bool("no-scheduler", false, "do not start the reminder scheduler")
	_ = fs.Parse(args)

	cfg, logger := setup(*debug)
	defer logger.Sync()
	if *noScheduler {
		off := false
		cfg.Reminders.Autostart = &off
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{Version: version})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return 1
	}
	defer closeApp(application, logger)

	if err := application.Serve(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func runDispatch(args []string) int {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger := setup(*debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{Version: version})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return 1
	}
	defer closeApp(application, logger)

	report, err := application.Dispatch(ctx)
	if err != nil {
		logger.Error("dispatch failed", zap.Error(err))
		return 1
	}
	return printJSON(os.Stdout, report)
}

func runNormalize(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(stdout)
	file := fs.String("file", "", "file holding the raw reply (default stdin)")
	withholdFallback := fs.Bool("withhold-fallback", false, "do not mark the fallback record as eligible")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var (
		raw []byte
		err error
	)
	if *file != "" {
		raw, err = os.ReadFile(*file)
	} else {
		raw, err = io.ReadAll(stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read reply: %v\n", err)
		return 1
	}

	res := normalizer.New(!*withholdFallback).Normalize(string(raw))
	out := struct {
		Medicines    any    `json:"medicines"`
		Eligible     any    `json:"eligible"`
		Dropped      any    `json:"dropped"`
		FallbackUsed bool   `json:"fallback_used"`
		ParseError   string `json:"parse_error,omitempty"`
	}{
		Medicines:    res.Medicines,
		Eligible:     res.Eligible,
		Dropped:      res.Dropped,
		FallbackUsed: res.FallbackUsed,
	}
	if res.ParseErr != nil {
		out.ParseError = res.ParseErr.Error()
	}
	return printJSON(stdout, out)
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	return 0
}

func closeApp(application *app.Application, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Close(ctx); err != nil {
		logger.Warn("close", zap.Error(err))
	}
}
