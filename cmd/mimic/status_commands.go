package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:        %v\n", status.Running)
			fmt.Fprintf(out, "PID:            %d\n", status.PID)
			fmt.Fprintf(out, "Registry DB:    %s\n", status.RegistryDBPath)
			fmt.Fprintf(out, "Lock file:      %s\n", status.LockFilePath)
			fmt.Fprintf(out, "Synthesis:      %s\n", readiness(status.SynthesisReady))
			fmt.Fprintf(out, "Orchestrator:   %s\n", readiness(status.OrchestratorBusy))

			if len(status.CloneStats) > 0 {
				fmt.Fprintln(out, "Clones:")
				keys := make([]string, 0, len(status.CloneStats))
				for key := range status.CloneStats {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintf(out, "  %-10s %d\n", key, status.CloneStats[key])
				}
			}
			return nil
		},
	}
}

func readiness(ready bool) string {
	if ready {
		return "ready"
	}
	return "not configured"
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage synthesis jobs",
	}

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running synthesis job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			clone, err := client.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled, clone %s is %s\n", args[0], clone.ID, clone.Status)
			return nil
		},
	})

	return jobsCmd
}

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show provider credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			credits, err := client.Credits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credits: %.2f of %.2f remaining\n", credits.Remaining, credits.Total)
			return nil
		},
	}
}
