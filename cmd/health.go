// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraiseql/pgtviews/cmd/flags"
)

func healthCmd() *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Report whether the catalog and generated engine functions are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.HealthCheck(cmd.Context())
			if err != nil {
				return err
			}

			reportJSON, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(reportJSON))
			return nil
		},
	}

	flags.PgConnectionFlags(healthCmd)

	return healthCmd
}
