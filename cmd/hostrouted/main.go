// SPDX-License-Identifier: GPL-3.0-or-later

// Command hostrouted runs the multi-protocol transparent forwarding proxy.
//
// Usage:
//
//	hostrouted [-f config.json] [-c 0.0.0.0:1339] [-l log.yaml] \
//	    -b kind=http,addr=0.0.0.0:8080,chain=default \
//	    -b kind=tls,addr=0.0.0.0:8443,chain=default
//
// Each -b flag declares one listener as comma-separated key=value pairs
// (kind|k: http, tls, or mc; addr|a: socket address; chain|c: the chain to
// start resolution with, required). Listeners are bound once at startup;
// configuration reloads via the control plane never rebind them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bassosimone/errclass"
	"github.com/bassosimone/hostroute"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// options collects the command line flags.
type options struct {
	binds       []string
	configPath  string
	controlAddr string
	loggingPath string
}

// newRootCommand builds the cobra command tree.
func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "hostrouted",
		Short:         "multi-protocol transparent forwarding proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "f", "config.json", "path to the JSON config file")
	flags.StringVarP(&opts.controlAddr, "control", "c", "0.0.0.0:1339", "bind address for the control-plane REST API")
	flags.StringVarP(&opts.loggingPath, "logging", "l", "log.yaml", "path to the YAML logging config")
	flags.StringArrayVarP(&opts.binds, "bind", "b", nil, "listener declaration (kind=...,addr=...,chain=...), repeatable")
	return cmd
}

// run wires the components together and serves until interrupted.
func run(ctx context.Context, opts *options) error {
	logger := hostroute.NewLoggerFromFile(opts.loggingPath)

	specs := make([]hostroute.ListenerSpec, 0, len(opts.binds))
	for _, bind := range opts.binds {
		spec, err := hostroute.ParseListenerSpec(bind)
		if err != nil {
			return fmt.Errorf("invalid --bind %q: %w", bind, err)
		}
		specs = append(specs, spec)
	}

	deps := hostroute.NewDeps()
	deps.ErrClassifier = hostroute.ErrClassifierFunc(errclass.New)

	store := hostroute.NewStore(opts.configPath, logger)
	store.LoadFromDisk()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	control := &http.Server{
		Addr:    opts.controlAddr,
		Handler: hostroute.NewControlHandler(store, logger),
	}
	go func() {
		logger.Info("controlStart", slog.String("localAddr", opts.controlAddr))
		err := control.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("controlError", slog.Any("err", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		control.Shutdown(shutdownCtx)
	}()

	pool := hostroute.NewPool(deps, store, specs, logger)
	bound := pool.Run(ctx)

	// With no traffic-plane listeners the pool returns immediately, but
	// the control plane should keep serving until interrupted.
	if bound == 0 {
		<-ctx.Done()
	}
	return nil
}
