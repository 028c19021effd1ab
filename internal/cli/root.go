// Package cli implements telloomctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// Backend is what the commands drive. The real one wraps Postgres and the
// service; tests substitute their own.
type Backend interface {
	Migrate(ctx context.Context) error
	ExpireInvitations(ctx context.Context) (int, error)
	ReindexResponses(ctx context.Context, sharerID string) (int, error)
	Close() error
}

// Opener connects a Backend for one command run.
type Opener func(ctx context.Context) (Backend, error)

type RootOptions struct {
	Format string
	open   Opener
}

var validFormats = []string{"text", "json"}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "telloomctl",
		Short:         "Operate a Telloom API deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newInvitationsCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))
	return cmd
}

// withBackend opens a backend, runs fn, and closes it.
func (o *RootOptions) withBackend(ctx context.Context, fn func(Backend) error) error {
	backend, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend)
}

// report prints a result as a sentence or as a JSON object.
func (o *RootOptions) report(w io.Writer, text string, fields map[string]any) error {
	if o.Format == "json" {
		return json.NewEncoder(w).Encode(fields)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
