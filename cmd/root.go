// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fraiseql/pgtviews/cmd/flags"
	"github.com/fraiseql/pgtviews/pkg/engine"
	"github.com/fraiseql/pgtviews/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "pgtview",
	Short: "pgtview maintains incrementally-updated JSON materialized-view projections",
}

func init() {
	viper.SetEnvPrefix("PGTVIEW")
	viper.AutomaticEnv()
	flags.PgConnectionFlags(rootCmd)
}

// NewEngine builds an *engine.Engine from the bound persistent flags, the
// same role cmd.NewRoll plays for the teacher's migration runner.
func NewEngine(ctx context.Context) (*engine.Engine, error) {
	var opts []engine.Option
	if lt := flags.LockTimeout(); lt > 0 {
		opts = append(opts, engine.WithLockTimeout(lt))
	}
	if role := flags.Role(); role != "" {
		opts = append(opts, engine.WithRole(role))
	}
	if flags.StrictIsolation() {
		opts = append(opts, engine.WithStrictIsolation())
	}
	opts = append(opts, engine.WithLogger(logging.New()))

	return engine.New(ctx, flags.PostgresURL(), flags.Schema(), flags.CatalogSchema(), opts...)
}

// Execute registers every subcommand and runs the root command.
func Execute() error {
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(dropCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(queueInfoCmd())

	return rootCmd.Execute()
}
