package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/node"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

// InspectResult is the restored state of one document.
type InspectResult struct {
	GUID        string          `json:"guid"`
	ClientID    uint64          `json:"client_id"`
	Updates     int             `json:"updates"`
	Fingerprint string          `json:"fingerprint"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

// WriteText implements TextWriter.
func (r InspectResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Document:    %s\n", r.GUID)
	fmt.Fprintf(w, "Client:      %d\n", r.ClientID)
	fmt.Fprintf(w, "Updates:     %d\n", r.Updates)
	fmt.Fprintf(w, "Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(w, "%s\n", r.Snapshot)
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <guid>",
		Short: "Print a stored document's projection",
		Long: `Restore a document from its stored update log and print its JSON
projection with the projection fingerprint. Replicas that converged
report the same fingerprint.

Examples:
  ycoord inspect --db ./ycoord.db notes
  ycoord inspect --db ./ycoord.db notes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	return cmd
}

func runInspect(opts *InspectOptions, guid string, cmd *cobra.Command) error {
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

	snap, err := doc.Snapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read document", err)
	}
	fp, err := node.Fingerprint(snap)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fingerprint document", err)
	}
	data, err := node.Marshal(snap)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode document", err)
	}

	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(InspectResult{
		GUID:        guid,
		ClientID:    doc.ClientID(),
		Updates:     info.Updates,
		Fingerprint: fp,
		Snapshot:    data,
	})
}
