// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraiseql/pgtviews/cmd/flags"
)

func analyzeCmd() *cobra.Command {
	var selectFile string

	analyzeCmd := &cobra.Command{
		Use:    "analyze",
		Short:  "Classify a SELECT's columns and compositions without creating a projection",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selectText, err := readSelectSource(selectFile)
			if err != nil {
				return err
			}

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Init(cmd.Context()); err != nil {
				return err
			}

			result, err := e.AnalyzeSelect(cmd.Context(), selectText)
			if err != nil {
				return err
			}

			resultJSON, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(resultJSON))
			return nil
		},
	}

	analyzeCmd.Flags().StringVarP(&selectFile, "select", "s", "", "Path to a file containing the SELECT (default: read stdin)")
	flags.PgConnectionFlags(analyzeCmd)

	return analyzeCmd
}
