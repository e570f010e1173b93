// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fraiseql/pgtviews/cmd/flags"
)

func queueInfoCmd() *cobra.Command {
	queueInfoCmd := &cobra.Command{
		Use:   "queue-info",
		Short: "Show the calling session's transaction-local refresh queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			info, err := e.QueueInfo(cmd.Context())
			if err != nil {
				return err
			}

			infoJSON, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(infoJSON))
			return nil
		},
	}

	flags.PgConnectionFlags(queueInfoCmd)

	return queueInfoCmd
}
