package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFontsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fonts",
		Short: "List installed caption fonts",
		RunE: func(cmd *cobra.Command, args []string) error {
			fonts, err := ctx.client().Fonts(cmd.Context())
			if err != nil {
				return err
			}
			if len(fonts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No fonts installed")
				return nil
			}
			rows := make([][]string, 0, len(fonts))
			for _, font := range fonts {
				rows = append(rows, []string{font.Name, font.File})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "File"}, rows))
			return nil
		},
	}
}
