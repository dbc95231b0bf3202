package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTrimCmd(opts *rootOptions) *cobra.Command {
	var (
		inputs  []string
		outputs []string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "trim WORKBOOK",
		Short: "Reduce a model to the cells linking inputs to outputs",
		Long: `Evaluate the outputs, keep only the cells on a path from the inputs to
the outputs and save the result as a snapshot.

Formulas the inputs cannot influence are frozen to their current value.
The snapshot format follows the file extension (.msgpack, .yaml, .json).

  focus trim model.xlsx --input Assumptions!B1 --output Summary!B6 --out model.msgpack`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := openEngine(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer closeEngine()

			if err := engine.TrimGraph(inputs, outputs); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			stats := engine.Stats()
			printSuccess(out, "trimmed model to %d cells", stats.Cells)
			printKV(out, "inputs", stats.Inputs)
			printKV(out, "formulas", stats.Formulas)
			printKV(out, "edges", stats.Edges)

			if outPath == "" {
				return nil
			}
			if err := engine.ToFile(outPath); err != nil {
				return fmt.Errorf("saving %s: %w", outPath, err)
			}
			printSuccess(out, "saved %s", outPath)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "input cell or range (repeatable)")
	cmd.Flags().StringArrayVar(&outputs, "output", nil, "output cell or range (repeatable)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "snapshot file to write")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
