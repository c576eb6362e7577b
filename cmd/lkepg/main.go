// SPDX-License-Identifier: MIT

// Command lkepg builds the Sri Lankan XMLTV guides: it fetches the upstream
// feed, keeps the local channels, translates programme text and publishes
// the results.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anilwee/dialog/internal/config"
	lklog "github.com/anilwee/dialog/internal/log"
	"github.com/anilwee/dialog/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lklog.Configure(lklog.Config{Level: "info", Output: stderr, Service: "lkepg", Version: version})

	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close(context.WithoutCancel(ctx))
	if err != nil {
		logger := lklog.WithComponent("cli")
		logger.Error().Err(err).Str(lklog.FieldEvent, "command.failed").Msg("lkepg failed")
		return 1
	}
	return 0
}

// app carries state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFiles   []string
	logLevel   string
	console    bool

	cfg     config.AppConfig
	logFile *os.File
	tracing *telemetry.Provider
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lkepg",
		Short:         "Sri Lankan XMLTV guide toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := a.loadConfig(); err != nil {
				return err
			}
			return a.startTracing(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to YAML config file")
	pf.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default ./.env when present)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&a.console, "log-console", false, "human readable log output")

	root.AddCommand(
		a.extractCmd(),
		a.filterCmd(),
		a.translateCmd(),
		a.tiledCmd(),
		a.fetchCmd(),
		a.runCmd(),
		a.watchCmd(),
		a.serveCmd(),
		a.cacheCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.NewLoader(a.configPath, version).Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	return a.configureLogging()
}

func (a *app) configureLogging() error {
	lc := lklog.Config{
		Level:   a.cfg.Log.Level,
		Output:  a.stderr,
		Console: a.console,
		Service: "lkepg",
		Version: version,
	}
	if a.cfg.Log.File != "" && a.logFile == nil {
		f, err := lklog.OpenEventLog(a.cfg.Log.File)
		if err != nil {
			return err
		}
		a.logFile = f
	}
	if a.logFile != nil {
		lc.Files = []io.Writer{a.logFile}
	}
	lklog.Configure(lc)

	logger := lklog.WithComponent("cli")
	ev := logger.Debug().Str(lklog.FieldEvent, "config.loaded")
	if a.configPath != "" {
		ev = ev.Str(lklog.FieldPath, a.configPath)
	}
	ev.Msg("configuration loaded")
	return nil
}

func (a *app) startTracing(ctx context.Context) error {
	tc := a.cfg.Telemetry
	p, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        tc.Enabled,
		Exporter:       tc.Exporter,
		Endpoint:       tc.Endpoint,
		SamplingRate:   tc.SamplingRate,
		ServiceName:    "lkepg",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	a.tracing = p
	if tc.Enabled {
		logger := lklog.WithComponent("cli")
		logger.Info().Str("exporter", tc.Exporter).Str("endpoint", tc.Endpoint).Msg("tracing enabled")
	}
	return nil
}

// validate re-checks the configuration after command-line overrides.
func (a *app) validate() error {
	if err := config.Validate(a.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		logger := lklog.WithComponent("cli")
		logger.Warn().Err(err).Msg("trace export incomplete")
	}
	a.tracing = nil
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lkepg %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return err
		},
	}
}
