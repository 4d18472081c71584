package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local entity cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached entities (queues are preserved)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CacheClear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			})
		},
	}

	cacheCmd.AddCommand(clearCmd)
	return cacheCmd
}
