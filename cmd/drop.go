// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fraiseql/pgtviews/cmd/flags"
)

func dropCmd() *cobra.Command {
	var ifExists bool

	dropCmd := &cobra.Command{
		Use:   "drop <entity>",
		Short: "Drop a projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := args[0]

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Init(cmd.Context()); err != nil {
				return err
			}

			sp, _ := pterm.DefaultSpinner.WithText("Dropping projection " + entity + "...").Start()
			if err := e.Drop(cmd.Context(), entity, ifExists); err != nil {
				sp.Fail(fmt.Sprintf("Failed to drop projection %s: %s", entity, err))
				return err
			}

			sp.Success("Projection " + entity + " dropped")
			return nil
		},
	}

	dropCmd.Flags().BoolVar(&ifExists, "if-exists", false, "Do not error if the entity does not exist")
	flags.PgConnectionFlags(dropCmd)

	return dropCmd
}
