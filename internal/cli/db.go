package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/shared"
	"github.com/roach88/ycoord/internal/store"
)

// OriginCLI tags updates written by CLI commands.
const OriginCLI = "cli"

// addDatabaseFlag registers the required --db flag.
func addDatabaseFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
}

func openStore(opts *RootOptions, path string) (*store.Store, error) {
	st, err := store.Open(path, store.WithLogger(opts.logger()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadDocument restores a stored document. Unknown documents are command
// errors.
func loadDocument(ctx context.Context, opts *RootOptions, st *store.Store, guid string) (*shared.Document, error) {
	o := shared.DefaultOptions()
	o.Logger = opts.logger()
	doc, err := store.Load(ctx, st, guid, o)
	if errors.Is(err, store.ErrUnknownDocument) {
		return nil, NewExitError(ExitCommandError, "document not found: "+guid)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load document", err)
	}
	opts.logger().Debug("document loaded", "doc", guid, "client_id", doc.ClientID())
	return doc, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
