package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dealsync/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", boolKind(status.Running), yesNo(status.Running), colorize))
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Sync", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Online", boolKind(status.Online), yesNo(status.Online), colorize))
				syncingKind := statusInfo
				if status.Syncing {
					syncingKind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine("Syncing", syncingKind, yesNo(status.Syncing), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Last sync", statusInfo, formatSyncTime(status.LastSyncTime), colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Queues", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := buildQueueCountRows(status)
				table := renderTable([]string{"Queue", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(stdout, table)

				if len(status.Errors) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Recent Errors", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, e := range status.Errors {
						label := titleCase(e.Type)
						detail := fmt.Sprintf("%s (%s)", e.Message, e.Timestamp.Format(time.RFC3339))
						fmt.Fprintln(stdout, renderStatusLine(label, statusError, detail, colorize))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func buildQueueCountRows(status *ipc.StatusResponse) [][]string {
	return [][]string{
		{"Pending uploads", strconv.Itoa(status.PendingUploads)},
		{"Pending mutations", strconv.Itoa(status.PendingMutations)},
		{"Failed uploads", strconv.Itoa(status.FailedUploads)},
	}
}

func boolKind(value bool) statusKind {
	if value {
		return statusOK
	}
	return statusWarn
}

func formatSyncTime(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

var statusTitleCaser = cases.Title(language.English)

func titleCase(value string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), "_", " ")
	if cleaned == "" {
		return value
	}
	return statusTitleCaser.String(cleaned)
}
