// cmd/thumbnailer/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tendant/site-thumbnailer/internal/bus"
	"github.com/tendant/site-thumbnailer/internal/logging"
	"github.com/tendant/site-thumbnailer/internal/metrics"
	"github.com/tendant/site-thumbnailer/internal/plan"
	"github.com/tendant/site-thumbnailer/internal/process"
	"github.com/tendant/site-thumbnailer/internal/watch"
)

var (
	configFile string
	logLevel   string
	force      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(slog.Default(), "thumbnailer failed", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "thumbnailer",
		Short:         "Generate thumbnails for images in a static site output tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./thumbnailer.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one thumbnail pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				_, err := a.pass(ctx)
				return err
			})
		},
	}
	generateCmd.Flags().BoolVar(&force, "force", false, "regenerate thumbnails that already exist")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the thumbnails a pass would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				_, p, err := a.runner.Plan(a.cfg.settings(false))
				if err != nil {
					return err
				}
				printPlan(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a pass, then rerun it whenever source images change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				roots := plan.ResolveRoots(a.cfg.OutputPath, a.cfg.Paths)
				return watch.New(roots, a.cfg.WatchDebounce, a.pass, a.logger).Run(ctx)
			})
		},
	}
	watchCmd.Flags().BoolVar(&force, "force", false, "regenerate thumbnails that already exist")

	root.AddCommand(generateCmd, planCmd, watchCmd)
	return root
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg      config
	logger   *slog.Logger
	runner   *process.Runner
	recorder *metrics.Recorder
}

func withApp(fn func(a *app) error) error {
	cfg, err := loadConfig(configFile, logLevel)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	var observers []process.Observer
	a := &app{cfg: cfg, logger: logger}
	if cfg.MetricsFile != "" {
		a.recorder = metrics.NewRecorder()
		observers = append(observers, a.recorder)
	}
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("connect nats failed, pass notifications disabled", "url", cfg.NATSURL, "err", err)
		} else {
			defer nc.Close()
			observers = append(observers, bus.NewNotifier(nc, cfg.ResultSubject, logger))
		}
	}

	a.runner = process.NewRunnerFor(afero.NewOsFs(), cfg.Backend, logger, observers...)
	return fn(a)
}

// pass runs one thumbnail pass and returns its planned outputs.
func (a *app) pass(ctx context.Context) ([]string, error) {
	report, err := a.runner.Run(ctx, a.cfg.settings(force))
	if report == nil {
		return nil, err
	}

	if a.recorder != nil && !report.Disabled {
		if werr := a.recorder.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			a.logger.Error("write metrics textfile failed", "path", a.cfg.MetricsFile, "err", werr)
		}
	}

	outputs := make([]string, 0, len(report.Entries))
	for _, e := range report.Entries {
		outputs = append(outputs, e.Output)
	}
	return outputs, err
}

func printPlan(w io.Writer, p plan.Plan) {
	for _, out := range p.Outputs() {
		src := p[out]
		fmt.Fprintf(w, "%s <- %s (%s)\n", out, src.Input, src.Resize)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
