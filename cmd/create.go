// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fraiseql/pgtviews/cmd/flags"
)

func createCmd() *cobra.Command {
	var entity, selectFile string

	createCmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a projection from a SELECT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity = args[0]

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

			sp, _ := pterm.DefaultSpinner.WithText("Creating projection " + entity + "...").Start()
			if err := e.Create(cmd.Context(), entity, selectText); err != nil {
				sp.Fail(fmt.Sprintf("Failed to create projection %s: %s", entity, err))
				return err
			}

			sp.Success("Projection " + entity + " created")
			return nil
		},
	}

	createCmd.Flags().StringVarP(&selectFile, "select", "s", "", "Path to a file containing the backing SELECT (default: read stdin)")
	flags.PgConnectionFlags(createCmd)

	return createCmd
}

func readSelectSource(path string) (string, error) {
	if path == "" {
		b, err := os.ReadFile("/dev/stdin")
		if err != nil {
			return "", fmt.Errorf("reading SELECT from stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading SELECT from %s: %w", path, err)
	}
	return string(b), nil
}
