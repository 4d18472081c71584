package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline queues",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued uploads and mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(listStatuses)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Uploads) == 0 && len(resp.Mutations) == 0 {
					fmt.Fprintln(stdout, "Queues are empty")
					return nil
				}

				if len(resp.Uploads) > 0 {
					table := renderTable(
						[]string{"ID", "File", "Status", "Retries", "Created", "Error"},
						buildUploadRows(resp.Uploads),
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					)
					fmt.Fprintln(stdout, table)
				}
				if len(resp.Mutations) > 0 {
					table := renderTable(
						[]string{"ID", "Kind", "Retries", "Created"},
						buildMutationRows(resp.Mutations),
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
					)
					fmt.Fprintln(stdout, table)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter uploads by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit queue contents as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d uploads\n", resp.Updated)
				return nil
			})
		},
	}
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var maxAgeHours int

	cmd := &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed uploads from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClearCompleted(maxAgeHours)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed uploads\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxAgeHours, "older-than", 0, "Only remove uploads completed more than this many hours ago")
	return cmd
}

func buildUploadRows(items []ipc.UploadItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			filepath.Base(item.LocalPath),
			item.Status,
			strconv.Itoa(item.RetryCount),
			item.CreatedAt.Local().Format(time.RFC3339),
			item.ErrorMessage,
		})
	}
	return rows
}

func buildMutationRows(items []ipc.MutationItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			shortID(item.ID),
			item.Kind,
			strconv.Itoa(item.RetryCount),
			item.CreatedAt.Local().Format(time.RFC3339),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
