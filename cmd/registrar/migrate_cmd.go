package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/registrar/migrations"
	"github.com/iota-uz/registrar/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := migrations.Open(configuration.Use().Database.Opts)
				if err != nil {
					return err
				}
				defer db.Close()
				results, err := migrations.Up(cmd.Context(), db)
				if err != nil {
					return err
				}
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s (%s)\n", r.Source.Path, r.Duration)
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := migrations.Open(configuration.Use().Database.Opts)
				if err != nil {
					return err
				}
				defer db.Close()
				r, err := migrations.Down(cmd.Context(), db)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", r.Source.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := migrations.Open(configuration.Use().Database.Opts)
				if err != nil {
					return err
				}
				defer db.Close()
				statuses, err := migrations.Status(cmd.Context(), db)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", s.State, s.Source.Path)
				}
				return nil
			},
		},
	)
	return cmd
}
