// tendlc runs the 10DLC registration service: the signed webhook endpoints,
// the durable job worker and the reconciliation poller in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/goliatone/go-tendlc/adapters/gologger"
	"github.com/goliatone/go-tendlc/config"
	"github.com/goliatone/go-tendlc/core"
)

type flags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFile     string
	listenAddr  string
	migrateOnly bool
	noPoller    bool
	reconcile   bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var f flags
	flagSet := pflag.NewFlagSet("tendlc", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "tendlc.yaml", "path to the YAML config file (optional)")
	flagSet.StringVar(&f.envFile, "env-file", ".env", "path to a .env file loaded before TENDLC_ variables")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.StringVar(&f.logFile, "log-file", "", "write rotated JSON logs to this file instead of stderr")
	flagSet.StringVar(&f.listenAddr, "listen", "", "HTTP listen address, overrides http.listen_addr")
	flagSet.BoolVar(&f.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	flagSet.BoolVar(&f.noPoller, "no-poller", false, "disable the reconciliation poller")
	flagSet.BoolVar(&f.reconcile, "reconcile-on-start", false, "queue one reconciliation pass for the job worker at startup")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	logCfg := gologger.DefaultZapConfig()
	logCfg.Level = f.logLevel
	logCfg.FilePath = f.logFile
	logger, err := gologger.NewZapLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runtime := core.Config{}
	runtime.HTTP.ListenAddr = f.listenAddr
	runtime.Poller.Disabled = f.noPoller

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewKoanfLoader(
		config.WithFile(f.configPath, true),
		config.WithDotEnv(f.envFile),
	)
	app, err := newApp(ctx, runtime, appDeps{
		logger:     logger,
		configs:    loader.Provider(),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if f.migrateOnly {
		logger.Info("migrations applied", "driver", app.config.Database.Driver)
		return nil
	}
	if f.reconcile {
		if err := app.EnqueueReconcile(ctx); err != nil {
			return err
		}
	}
	return app.Run(ctx)
}
