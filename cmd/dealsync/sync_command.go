package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncNow()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Started {
					fmt.Fprintf(stdout, "Sync not started: %s\n", resp.Message)
					return nil
				}
				fmt.Fprintln(stdout, resp.Message)

				status, err := client.Status()
				if err != nil {
					return nil
				}
				fmt.Fprintf(stdout, "Pending uploads: %d, pending mutations: %d, failed uploads: %d\n",
					status.PendingUploads, status.PendingMutations, status.FailedUploads)
				return nil
			})
		},
	}
}
