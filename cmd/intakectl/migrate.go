package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/parcel-intake-backend/pkg/migrate"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dir string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run goose schema migrations",
	}
	migrateCmd.PersistentFlags().StringVar(&dir, "dir", migrate.DefaultDir, "Goose migrations directory")

	for _, command := range []string{"up", "down", "status"} {
		command := command
		migrateCmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: "goose " + command,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := ctx.database(cmd.Context())
				if err != nil {
					return err
				}
				sqlDB, err := client.DB().DB()
				if err != nil {
					return err
				}
				if err := migrate.Run(cmd.Context(), sqlDB, dir, command); err != nil {
					return fmt.Errorf("goose %s failed: %w", command, err)
				}
				return nil
			},
		})
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version <YYYYMMDDHHMMSS>",
		Short: "Migrate up or down to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}
			sqlDB, err := client.DB().DB()
			if err != nil {
				return err
			}
			return migrate.MigrateToVersion(cmd.Context(), sqlDB, dir, args[0])
		},
	})

	var noTx bool
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new SQL migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(dir, args[0], migrate.CreateOptions{NoTransaction: noTx})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	}
	createCmd.Flags().BoolVar(&noTx, "no-tx", false, "Run the migration outside a transaction")
	migrateCmd.AddCommand(createCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check migration files for goose annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate.ValidateDir(dir); err != nil {
				return fmt.Errorf("migration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	})

	return migrateCmd
}
