package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mimic/internal/api"
)

func newClonesCommand(ctx *commandContext) *cobra.Command {
	clonesCmd := &cobra.Command{
		Use:   "clones",
		Short: "Inspect and manage saved clones",
	}

	clonesCmd.AddCommand(newClonesListCommand(ctx))
	clonesCmd.AddCommand(newClonesShowCommand(ctx))
	clonesCmd.AddCommand(newClonesCreateCommand(ctx))
	clonesCmd.AddCommand(newClonesUseCommand(ctx))
	clonesCmd.AddCommand(newClonesDeleteCommand(ctx))

	return clonesCmd
}

func newClonesListCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			clones, err := client.ListClones(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(clones) == 0 {
				fmt.Fprintln(out, "No clones found")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(clones))
			for _, clone := range clones {
				rows = append(rows, []string{
					clone.ID,
					clone.Name,
					clone.OwnerID,
					colorizeStatus(clone.Status, colorize),
					fmt.Sprintf("%d", clone.UsageCount),
					clone.UpdatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Owner", "Status", "Uses", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Filter clones by owner")
	return cmd
}

func newClonesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one clone in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			clone, err := client.GetClone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCloneDetail(cmd, clone)
			return nil
		},
	}
}

func newClonesCreateCommand(ctx *commandContext) *cobra.Command {
	var owner, name, audioURL, imageURL string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new clone job from ingested media",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			clone, err := client.CreateClone(cmd.Context(), api.CreateCloneRequest{
				OwnerID:  owner,
				Name:     name,
				AudioURL: audioURL,
				ImageURL: imageURL,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Clone %s accepted (status %s)\n", clone.ID, clone.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Clone name")
	cmd.Flags().StringVar(&audioURL, "audio", "", "Ingested audio URL")
	cmd.Flags().StringVar(&imageURL, "image", "", "Ingested image URL")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("audio")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newClonesUseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Record a use of a saved clone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			clone, err := client.UseClone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Clone %s used %d times\n", clone.ID, clone.UsageCount)
			return nil
		},
	}
}

func newClonesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved clone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			deleted, err := client.DeleteClone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Clone was already gone")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Clone deleted")
			return nil
		},
	}
}

func printCloneDetail(cmd *cobra.Command, clone api.Clone) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "ID:       %s\n", clone.ID)
	fmt.Fprintf(out, "Name:     %s\n", clone.Name)
	fmt.Fprintf(out, "Owner:    %s\n", clone.OwnerID)
	fmt.Fprintf(out, "Status:   %s\n", colorizeStatus(clone.Status, colorize))
	if clone.JobID != "" {
		fmt.Fprintf(out, "Job:      %s\n", clone.JobID)
	}
	if clone.ResultVideoURL != "" {
		fmt.Fprintf(out, "Result:   %s\n", clone.ResultVideoURL)
	}
	if clone.DurationSeconds > 0 {
		fmt.Fprintf(out, "Duration: %.2fs\n", clone.DurationSeconds)
	}
	fmt.Fprintf(out, "Uses:     %d\n", clone.UsageCount)
	if clone.LastUsedAt != "" {
		fmt.Fprintf(out, "Last use: %s\n", clone.LastUsedAt)
	}
	if clone.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", strings.TrimSpace(clone.ErrorMessage))
	}
	if clone.CreatedAt != "" {
		fmt.Fprintf(out, "Created:  %s\n", clone.CreatedAt)
	}
}
