package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
)

func newSignOutCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sign-out",
		Short: "Wipe all local state: cache, queues, and sync metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if !force {
				fmt.Fprint(stdout, "This removes all cached data and queued work. Continue? [y/N] ")
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(stdout, "Aborted")
					return nil
				}
			}

			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SignOut(); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Signed out, local state cleared")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")
	return cmd
}
