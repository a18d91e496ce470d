package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <request.json>",
		Short: "Submit an edit request for rendering",
		Long: strings.TrimSpace(`
Submit reads a JSON edit request describing clips, captions, music and trim
settings, and enqueues it for rendering. Clip and music locators are file
names resolved against the configured upload and music directories.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read request file: %w", err)
			}

			job, err := ctx.client().Submit(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s)\n", job.ID, job.Token)
			return nil
		},
	}
}
