package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage render jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsDownloadCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStates []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := ctx.client().Jobs(cmd.Context(), listStates...)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.State,
					jobProgress(job),
					jobSize(job),
					job.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "State", "Progress", "Size", "Created"}, rows, 0, 3))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&listStates, "state", nil, "Filter by state (queued, running, succeeded, failed, cancelled)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one render job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			job, err := ctx.client().Job(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %d (%s)\n", job.ID, job.Token)
			fmt.Fprintf(out, "  State:    %s\n", job.State)
			fmt.Fprintf(out, "  Progress: %s\n", jobProgress(job))
			if job.Artifact != "" {
				fmt.Fprintf(out, "  Artifact: %s (%s, %.1fs)\n",
					job.Artifact, jobSize(job), job.DurationSeconds)
			}
			if job.ErrorKind != "" {
				fmt.Fprintf(out, "  Error:    %s: %s\n", job.ErrorKind, job.ErrorDetail)
			}
			fmt.Fprintf(out, "  Created:  %s\n", job.CreatedAt)
			if job.StartedAt != "" {
				fmt.Fprintf(out, "  Started:  %s\n", job.StartedAt)
			}
			if job.FinishedAt != "" {
				fmt.Fprintf(out, "  Finished: %s\n", job.FinishedAt)
			}
			return nil
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.client().Cancel(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %d\n", id)
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-queue failed jobs (all failed jobs when no ids given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				retried, err := client.RetryAll(cmd.Context())
				if err != nil {
					return err
				}
				if retried == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(out, "Re-queued %d failed job(s)\n", retried)
				return nil
			}

			for _, arg := range args {
				id, err := parseJobID(arg)
				if err != nil {
					return err
				}
				job, err := client.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Re-queued job %d (%s)\n", job.ID, job.State)
			}
			return nil
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a finished job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if err := ctx.client().Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", id)
			return nil
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete finished job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := ctx.client().ClearJobs(cmd.Context(), clearAll)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job record(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Also delete queued and running job records")
	return cmd
}

func newJobsDownloadCommand(ctx *commandContext) *cobra.Command {
	var destPath string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the finished artifact of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client := ctx.client()

			dest := strings.TrimSpace(destPath)
			if dest == "" {
				job, err := client.Job(cmd.Context(), id)
				if err != nil {
					return err
				}
				dest = job.Artifact
				if dest == "" {
					dest = fmt.Sprintf("reelforge-job-%d.mp4", id)
				}
			}

			written, err := client.Download(cmd.Context(), id, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", humanize.Bytes(uint64(written)), dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&destPath, "output", "o", "", "Destination file path")
	return cmd
}

func parseJobID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", value)
	}
	return id, nil
}

func jobProgress(job api.JobView) string {
	if job.ProgressStage == "" {
		return fmt.Sprintf("%.0f%%", job.ProgressPercent)
	}
	return fmt.Sprintf("%s %.0f%%", job.ProgressStage, job.ProgressPercent)
}

func jobSize(job api.JobView) string {
	if job.SizeBytes <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(job.SizeBytes))
}
