package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyeh/priceload/internal/db"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the schema in the configured database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		pool, err := newPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.InitSchema(ctx, pool); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		fmt.Println("Schema created.")
		return nil
	},
}
