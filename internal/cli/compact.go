package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/store"
)

// CompactOptions holds flags for the compact command.
type CompactOptions struct {
	*RootOptions
	Database string
}

// CompactResult reports a rewritten update log.
type CompactResult struct {
	GUID   string `json:"guid"`
	Before int    `json:"before"`
	Seq    int64  `json:"seq"`
}

// WriteText implements TextWriter.
func (r CompactResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d update(s) compacted into update %d\n", r.GUID, r.Before, r.Seq)
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compact <guid>",
		Short: "Replace a document's update log with one full-state update",
		Long: `Restore a document and replace its stored update log with a single
update holding its full state. The projection is unchanged.

Example:
  ycoord compact --db ./ycoord.db notes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	return cmd
}

func runCompact(opts *CompactOptions, guid string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	info, _, err := st.GetDocument(ctx, guid)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to look up document", err)
	}
	doc, err := loadDocument(ctx, opts.RootOptions, st, guid)
	if err != nil {
		return err
	}
	defer doc.Destroy(ctx)

	seq, err := store.Compact(ctx, st, doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compact document", err)
	}
	opts.logger().Info("document compacted", "doc", guid, "before", info.Updates, "seq", seq)

	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(CompactResult{
		GUID:   guid,
		Before: info.Updates,
		Seq:    seq,
	})
}
