package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var assignments []string
	cmd := &cobra.Command{
		Use:   "eval WORKBOOK ADDRESS...",
		Short: "Evaluate cells",
		Long: `Evaluate one or more cells or ranges and print their values.

Inputs can be changed before evaluating:
  focus eval model.xlsx Summary!B6 --set Assumptions!B1=0.1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := openEngine(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer closeEngine()

			if err := applyAssignments(engine, assignments); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, address := range args[1:] {
				value, err := engine.Evaluate(address)
				if err != nil {
					return fmt.Errorf("evaluating %s: %w", address, err)
				}
				fmt.Fprintf(out, "%s = %s\n", boldStyle.Render(address), formatValue(value))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "set an input before evaluating (ADDRESS=VALUE, repeatable)")
	return cmd
}
