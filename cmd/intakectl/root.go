package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithContext(newCommandContext())
}

func newRootCommandWithContext(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Operate the parcel intake backend from a shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		ctx.close()
	}

	rootCmd.PersistentFlags().BoolVar(&ctx.jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newManifestsCommand(ctx))
	rootCmd.AddCommand(newCustomersCommand(ctx))
	rootCmd.AddCommand(newTasksCommand(ctx))
	rootCmd.AddCommand(newSessionsCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))

	return rootCmd
}
