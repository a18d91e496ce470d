package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			runningKind := statusError
			if status.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(out, "Daemon")
			fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Job database", statusInfo, status.JobDBPath, colorize))

			fmt.Fprintln(out, "Queue")
			fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", status.Queue.Queued), colorize))
			fmt.Fprintln(out, renderStatusLine("Running", statusInfo, fmt.Sprintf("%d", status.Queue.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("Succeeded", statusInfo, fmt.Sprintf("%d", status.Queue.Succeeded), colorize))
			failedKind := statusInfo
			if status.Queue.Failed > 0 {
				failedKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", status.Queue.Failed), colorize))

			fmt.Fprintln(out, "Outputs")
			fmt.Fprintln(out, renderStatusLine("Artifacts", statusInfo, fmt.Sprintf("%d", status.Outputs.Count), colorize))
			fmt.Fprintln(out, renderStatusLine("Total size", statusInfo, humanize.Bytes(uint64(status.Outputs.TotalBytes)), colorize))

			fmt.Fprintln(out, "Tools")
			for _, dep := range status.Dependencies {
				kind := statusOK
				message := dep.Command
				if !dep.Available {
					kind = statusError
					if dep.Optional {
						kind = statusWarn
					}
					if dep.Detail != "" {
						message = dep.Detail
					}
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
			}
			return nil
		},
	}
}
