package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appkit/internal/app"
	"appkit/pkg/systemd"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	var sd systemd.Notifier
	_, _ = sd.Ready("listening on " + a.Addr())
	if every, err := systemd.WatchdogInterval(); err == nil && every > 0 {
		go func() { _ = sd.RunWatchdog(ctx, every, a.Err) }()
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		// the app context is derived from ctx, so a signal closes both
		if ctx.Err() == nil {
			reason = app.StopFatalError
		}
	}

	_, _ = sd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
	}
	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}
