package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage uploads and finalized outputs",
	}

	storageCmd.AddCommand(newStorageClearCommand(ctx))
	return storageCmd
}

func newStorageClearCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all uploads and finalized outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("storage clear removes all uploads and outputs; re-run with --yes to confirm")
			}
			resp, err := ctx.client().ClearStorage(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files, freed %s\n",
				resp.RemovedFiles, humanize.Bytes(uint64(resp.FreedBytes)))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion")
	return cmd
}
