package main

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		input   string
		outputs []string
		values  []float64
	)
	cmd := &cobra.Command{
		Use:   "sweep WORKBOOK",
		Short: "Evaluate outputs over a list of input values",
		Long: `Set an input to each of the given values in turn and print the outputs,
followed by the range and mean of every numeric output.

  focus sweep model.xlsx --input Assumptions!B1 --values 0.05,0.1,0.15 --output Summary!B6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := openEngine(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer closeEngine()

			out := cmd.OutOrStdout()
			header := append([]string{input}, outputs...)
			fmt.Fprintln(out, boldStyle.Render(strings.Join(header, "\t")))

			series := make([]stats.Float64Data, len(outputs))
			for _, value := range values {
				if err := engine.SetValue(input, value); err != nil {
					return err
				}
				row := []string{focus.FormatValue(value)}
				for i, output := range outputs {
					result, err := engine.Evaluate(output)
					if err != nil {
						return fmt.Errorf("evaluating %s: %w", output, err)
					}
					if n, ok := result.(float64); ok {
						series[i] = append(series[i], n)
					}
					row = append(row, focus.FormatValue(result))
				}
				fmt.Fprintln(out, strings.Join(row, "\t"))
			}

			for i, output := range outputs {
				if len(series[i]) == 0 {
					continue
				}
				lo, _ := series[i].Min()
				hi, _ := series[i].Max()
				mean, _ := series[i].Mean()
				fmt.Fprintf(out, "%s %s min=%s max=%s mean=%s\n", dimStyle.Render("summary"), output,
					focus.FormatValue(lo), focus.FormatValue(hi), focus.FormatValue(mean))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input cell to vary")
	cmd.Flags().StringArrayVar(&outputs, "output", nil, "output cell (repeatable)")
	cmd.Flags().Float64SliceVar(&values, "values", nil, "comma separated input values")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}
