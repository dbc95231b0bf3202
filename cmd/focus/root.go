package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	focus "github.com/vogtb/go-spreadsheet/focus"
	"github.com/vogtb/go-spreadsheet/focus/internal/config"
	"github.com/vogtb/go-spreadsheet/focus/internal/xlsx"
)

type rootOptions struct {
	configPath string
	cycles     bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "focus",
		Short: "Evaluate, trim and validate spreadsheet models",
		Long: `focus loads a workbook (.xlsx) or a saved model snapshot and evaluates
cells on demand.

Models can be trimmed to the cells linking a set of inputs to a set of
outputs, saved as snapshots, checked against the values the workbook
stored, and swept over a list of input values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "focus.toml", "config file (ignored when missing)")
	rootCmd.PersistentFlags().BoolVar(&opts.cycles, "cycles", false, "allow circular references and solve them iteratively")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newEvalCmd(opts),
		newTrimCmd(opts),
		newValidateCmd(opts),
		newTreeCmd(opts),
		newExportCmd(opts),
		newSweepCmd(opts),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		printFailure(os.Stderr, "%v", err)
		return 1
	}
	return 0
}

// openEngine loads a workbook or a snapshot. the returned close function
// must be called once the engine is no longer used.
func openEngine(cmd *cobra.Command, opts *rootOptions, path string) (*focus.Engine, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("cycles") {
		cfg.Cycles.Enabled = opts.cycles
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger := config.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	engineOpts := cfg.EngineOptions(logger)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		src, err := xlsx.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return focus.NewEngine(src, engineOpts...), func() { _ = src.Close() }, nil
	}

	if _, err := focus.FormatForPath(path); err != nil {
		return nil, nil, fmt.Errorf("%s is neither a workbook nor a snapshot: %w", path, err)
	}
	engine, err := focus.LoadFile(path, engineOpts...)
	if err != nil {
		return nil, nil, err
	}
	return engine, func() {}, nil
}

// parseLiteral reads a command line value as a number, a boolean, an
// error literal or text
func parseLiteral(text string) focus.Primitive {
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return n
	}
	switch strings.ToUpper(text) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if errValue, ok := focus.ParseErrorValue(text); ok {
		return errValue
	}
	return text
}

// applyAssignments applies ADDRESS=VALUE pairs
func applyAssignments(engine *focus.Engine, assignments []string) error {
	for _, assignment := range assignments {
		address, value, ok := strings.Cut(assignment, "=")
		if !ok || address == "" {
			return fmt.Errorf("invalid assignment %q, expected ADDRESS=VALUE", assignment)
		}
		if err := engine.SetValue(address, parseLiteral(value)); err != nil {
			return err
		}
	}
	return nil
}
