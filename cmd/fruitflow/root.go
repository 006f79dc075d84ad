package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/paveg/fruitflow/internal/config"
	"github.com/paveg/fruitflow/internal/pipeline"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	rawDir     string
	dataDir    string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "fruitflow",
		Short:         "Batch ETL for weekly fruit export files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Configuration file (.json, .yaml, .yml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")
	flags.StringVar(&opts.rawDir, "raw-dir", "", "Directory of raw weekly CSV files")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for the master and derived tables")

	cmd.AddCommand(
		newInventoryCmd(opts),
		newSchemaCmd(opts),
		newNormalizeCmd(opts),
		newCombineCmd(opts),
		newAuditCmd(opts),
		newValidateCmd(opts),
		newCleanCmd(opts),
		newPresentCmd(opts),
		newSubsetCmd(opts),
		newRunCmd(opts),
		newTopCmd(opts),
		newSeriesCmd(opts),
		newKPIsCmd(opts),
		newVarietiesCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setup loads the configuration and builds the logger. Flags win over the
// file and the environment.
func (o *globalOptions) setup(logOut io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.rawDir != "" {
		cfg.Paths.RawDir = o.rawDir
	}
	if o.dataDir != "" {
		cfg.Paths.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	o.logger, err = newLogger(logOut, cfg.Logging)
	return err
}

func newLogger(w io.Writer, lc config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	}
}

func (o *globalOptions) runner() *pipeline.Runner {
	return pipeline.NewRunner(o.cfg, o.logger)
}
