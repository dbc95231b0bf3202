package main

import (
	"fmt"
	"io"
	"maps"
	"runtime"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

type validateFlags struct {
	outputs    []string
	tolerance  float64
	verifyTree bool
	serialized bool
}

// workbookResult is the outcome of validating one workbook
type workbookResult struct {
	path       string
	report     focus.ValidationReport
	serialized map[string]focus.Mismatch
}

func (r workbookResult) ok() bool {
	return r.report.OK() && len(r.serialized) == 0
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	flags := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate WORKBOOK...",
		Short: "Compare computed values with the values stored in workbooks",
		Long: `Recompute every formula and compare the result with the value the
workbook stored for it. Several workbooks are validated in parallel.

With --serialized the model is also saved and restored in memory, and the
restored values are compared with the original ones.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]workbookResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, path := range args {
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					result, err := validateWorkbook(cmd, opts, flags, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					results[i] = result
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for _, result := range results {
				printResult(cmd.OutOrStdout(), result)
				if !result.ok() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workbooks failed validation", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&flags.outputs, "output", nil, "only validate these cells and ranges (repeatable)")
	cmd.Flags().Float64Var(&flags.tolerance, "tolerance", focus.DefaultValidationTolerance, "allowed absolute numeric difference")
	cmd.Flags().BoolVar(&flags.verifyTree, "verify-tree", false, "also validate the formulas the outputs depend on")
	cmd.Flags().BoolVar(&flags.serialized, "serialized", false, "also check that a snapshot round trip keeps every value")
	return cmd
}

func validateWorkbook(cmd *cobra.Command, opts *rootOptions, flags *validateFlags, path string) (workbookResult, error) {
	engine, closeEngine, err := openEngine(cmd, opts, path)
	if err != nil {
		return workbookResult{}, err
	}
	defer closeEngine()

	validateOpts := []focus.ValidateOption{focus.WithValidationTolerance(flags.tolerance)}
	if len(flags.outputs) > 0 {
		validateOpts = append(validateOpts, focus.WithOutputs(flags.outputs...))
	}
	if flags.verifyTree {
		validateOpts = append(validateOpts, focus.WithVerifyTree())
	}
	report, err := engine.ValidateCalcs(validateOpts...)
	if err != nil {
		return workbookResult{}, err
	}
	result := workbookResult{path: path, report: report}

	if flags.serialized {
		diffs, err := engine.ValidateSerialized(flags.outputs...)
		if err != nil {
			return workbookResult{}, err
		}
		result.serialized = diffs
	}
	return result, nil
}

func printResult(w io.Writer, result workbookResult) {
	if result.ok() {
		printSuccess(w, "%s: all values match", result.path)
		return
	}
	printFailure(w, "%s: %d problems", result.path, result.report.Count()+len(result.serialized))
	for _, category := range []focus.ValidationCategory{focus.CategoryMismatch, focus.CategoryException, focus.CategoryNotImplemented} {
		for _, m := range result.report.Entries(category) {
			line := fmt.Sprintf("%s expected %s, computed %s", m.Address,
				focus.FormatValue(m.Expected), focus.FormatValue(m.Computed))
			if m.Error != "" {
				line = fmt.Sprintf("%s: %s", m.Address, m.Error)
			}
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render(string(category)), line)
		}
	}
	for _, address := range slices.Sorted(maps.Keys(result.serialized)) {
		m := result.serialized[address]
		fmt.Fprintf(w, "  %s %s restored as %s, was %s\n", dimStyle.Render("serialized"), address,
			focus.FormatValue(m.Computed), focus.FormatValue(m.Expected))
	}
	if summary := result.report.Summary(); summary.Count > 0 {
		printKV(w, "deviations", summary.Count)
		printKV(w, "max", summary.Max)
		printKV(w, "mean", summary.Mean)
		printKV(w, "median", summary.Median)
	}
}
