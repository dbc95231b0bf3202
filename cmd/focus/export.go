package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "export WORKBOOK [ADDRESS...]",
		Short: "Export the dependency graph as DOT or JSON",
		Long: `Evaluate the given cells and export every cell they pulled into the
model, with an edge from each precedent to the cell reading it.

Snapshots are exported as they are; the addresses are optional there.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := openEngine(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer closeEngine()

			for _, address := range args[1:] {
				if _, err := engine.Evaluate(address); err != nil {
					return fmt.Errorf("evaluating %s: %w", address, err)
				}
			}

			var data []byte
			switch format {
			case "dot":
				data, err = engine.ExportDOT()
			case "json":
				data, err = json.MarshalIndent(engine.ExportGraph(), "", "  ")
			default:
				return fmt.Errorf("unknown export format %q (want dot or json)", format)
			}
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "wrote %s", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot or json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "file to write instead of stdout")
	return cmd
}
