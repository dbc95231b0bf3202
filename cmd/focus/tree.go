package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree WORKBOOK ADDRESS",
		Short: "Print the value tree of a cell",
		Long: `Print a cell with its value, followed by everything it depends on,
one level of indentation per step.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := openEngine(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer closeEngine()

			lines, err := engine.ValueTree(args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
