package main

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"immunocore/internal/core"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string
	driver     string
	dbPath     string

	cfg    core.Config
	logger *logrus.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "immunocore",
		Short:         "Immune-cell frequency analysis for cell-count trials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")
	flags.StringVar(&a.driver, "driver", "", "record store driver: memory|sqlite|postgres")
	flags.StringVar(&a.dbPath, "db", "", "sqlite database path")

	root.AddCommand(
		a.loadCmd(),
		a.overviewCmd(),
		a.filtersCmd(),
		a.summaryCmd(),
		a.serveCmd(),
		a.exportCmd(),
		a.schemaCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := core.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Storage.Driver = core.StorageDriver(a.driver)
	}
	if a.dbPath != "" {
		cfg.Storage.SQLitePath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := core.NewCommandLogger(a.errOut, cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// openService opens the configured store and wraps it in a service. The
// returned close function releases the store.
func (a *app) openService(ctx context.Context, opts ...core.Option) (*core.Service, func(), error) {
	store, err := core.OpenRecordStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	base := []core.Option{
		core.WithLogger(core.NewLogrusLogger(a.logger)),
		core.WithDistinctCache(core.NewDistinctCache(a.cfg.DistinctCacheSize)),
	}
	svc := core.NewService(store, append(base, opts...)...)
	closeFn := func() {
		if err := store.Close(); err != nil {
			a.logger.WithError(err).Warn("close record store")
		}
	}
	return svc, closeFn, nil
}
