package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
	"dealsync/internal/media"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var evaluationID string
	var opportunityID string
	var promptKey string
	var targetPath string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Queue a media file for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("inspect file %q: %w", path, err)
			}
			mimeType, err := media.MimeType(path)
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EnqueueUpload(ipc.EnqueueUploadRequest{
					LocalPath:     path,
					TargetPath:    targetPath,
					PromptKey:     promptKey,
					EvaluationID:  evaluationID,
					OpportunityID: opportunityID,
					MimeType:      mimeType,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as %s\n", filepath.Base(path), resp.Item.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&evaluationID, "evaluation", "", "Evaluation the media belongs to")
	cmd.Flags().StringVar(&opportunityID, "opportunity", "", "Opportunity the media belongs to")
	cmd.Flags().StringVar(&promptKey, "prompt", "", "Capture prompt key for the media")
	cmd.Flags().StringVar(&targetPath, "target", "", "Explicit storage path for the media")
	return cmd
}
