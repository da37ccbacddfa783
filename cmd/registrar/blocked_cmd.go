package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/services"
)

func newBlockedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "Review registrations waiting for a decision",
	}
	cmd.AddCommand(newBlockedListCmd(), newBlockedResolveCmd(), newBlockedRejectCmd())
	return cmd
}

func blockedService(rt *process) *services.BlockedJobService {
	return rt.app.Service(services.BlockedJobService{}).(*services.BlockedJobService)
}

func newBlockedListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blocked jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" && !blockedjob.Status(status).Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			items, err := blockedService(rt).List(rt.ctx(cmd.Context()), blockedjob.FindParams{
				Status: blockedjob.Status(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tREASON\tWORKFLOW\tCREATED")
			for _, b := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Status, b.Reason, b.WorkflowSlug, b.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", string(blockedjob.StatusPending), "pending, resolved or rejected; empty for all")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func newBlockedResolveCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "resolve <id> [--data json]",
		Short: "Resolve a blocked job and requeue its workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			var resolution json.RawMessage
			if data != "" {
				resolution = json.RawMessage(data)
			}
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			out, err := blockedService(rt).Resolve(rt.ctx(cmd.Context()), id, resolution)
			if err != nil {
				return err
			}
			return printOutcome(cmd, id, out)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON object merged over the stored input")
	return cmd
}

func newBlockedRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a blocked job without running it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			out, err := blockedService(rt).Reject(rt.ctx(cmd.Context()), id)
			if err != nil {
				return err
			}
			return printOutcome(cmd, id, out)
		},
	}
}

func printOutcome(cmd *cobra.Command, id uuid.UUID, out services.ResolutionOutcome) error {
	if !out.Found {
		return fmt.Errorf("blocked job %s not found", id)
	}
	if !out.Applied {
		return fmt.Errorf("blocked job %s is already %s", id, out.Status)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
