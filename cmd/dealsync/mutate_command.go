package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dealsync/internal/ipc"
	"dealsync/internal/mutation"
)

func newMutateCommand(ctx *commandContext) *cobra.Command {
	var payloadFile string

	kinds := make([]string, 0, len(mutation.Kinds()))
	for _, kind := range mutation.Kinds() {
		kinds = append(kinds, kind.String())
	}

	cmd := &cobra.Command{
		Use:   "mutate <kind> [payload-json]",
		Short: "Queue a local write for replay against the backend",
		Long: "Queue a local write for replay against the backend.\n\n" +
			"Known kinds: " + strings.Join(kinds, ", ") + "\n\n" +
			"The payload is a JSON object, given inline, via --file, or on stdin\n" +
			"when the payload argument is \"-\".",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]

			payload, err := readMutationPayload(cmd, args, payloadFile)
			if err != nil {
				return err
			}
			if len(payload) > 0 && !json.Valid(payload) {
				return fmt.Errorf("payload is not valid JSON")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EnqueueMutation(ipc.EnqueueMutationRequest{
					Kind:    kind,
					Payload: payload,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s mutation as %s\n", kind, resp.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&payloadFile, "file", "f", "", "Read the payload from a JSON file")
	return cmd
}

func readMutationPayload(cmd *cobra.Command, args []string, payloadFile string) (json.RawMessage, error) {
	if payloadFile != "" {
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		return data, nil
	}
	if len(args) < 2 {
		return nil, nil
	}
	if args[1] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return data, nil
	}
	return json.RawMessage(args[1]), nil
}
