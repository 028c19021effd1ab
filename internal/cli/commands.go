package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				return opts.report(cmd.OutOrStdout(), "migrations applied", map[string]any{"ok": true})
			})
		},
	}
}

func newInvitationsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invitations",
		Short: "Invitation maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Move PENDING invitations past their TTL to EXPIRED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b Backend) error {
				count, err := b.ExpireInvitations(cmd.Context())
				if err != nil {
					return fmt.Errorf("expire invitations: %w", err)
				}
				return opts.report(cmd.OutOrStdout(),
					fmt.Sprintf("expired %d invitation(s)", count),
					map[string]any{"expired": count})
			})
		},
	})
	return cmd
}

func newSearchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search index maintenance",
	}

	var sharerID string
	reindex := &cobra.Command{
		Use:   "reindex",
		Short: "Push stored responses to the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd.Context(), func(b Backend) error {
				count, err := b.ReindexResponses(cmd.Context(), sharerID)
				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				return opts.report(cmd.OutOrStdout(),
					fmt.Sprintf("indexed %d response(s)", count),
					map[string]any{"indexed": count, "sharerId": sharerID})
			})
		},
	}
	reindex.Flags().StringVar(&sharerID, "sharer", "", "only reindex this sharer id")
	cmd.AddCommand(reindex)
	return cmd
}
