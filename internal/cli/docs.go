package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DocsOptions holds flags for the docs command.
type DocsOptions struct {
	*RootOptions
	Database string
}

// DocumentView is one stored document.
type DocumentView struct {
	GUID       string `json:"guid"`
	ClientID   uint64 `json:"client_id"`
	CreatedSeq int64  `json:"created_seq"`
	// CompactedSeq is 0 for a log that was never compacted.
	CompactedSeq int64 `json:"compacted_seq,omitempty"`
	Updates      int   `json:"updates"`
}

// DocsResult lists stored documents in creation order.
type DocsResult struct {
	Documents []DocumentView `json:"documents"`
}

// WriteText implements TextWriter.
func (r DocsResult) WriteText(w io.Writer) {
	if len(r.Documents) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return
	}
	for _, d := range r.Documents {
		fmt.Fprintf(w, "%s  client=%d  updates=%d\n", d.GUID, d.ClientID, d.Updates)
	}
}

// NewDocsCommand creates the docs command.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List stored documents",
		Long: `List every document registered in the database, oldest first.

Examples:
  ycoord docs --db ./ycoord.db
  ycoord docs --db ./ycoord.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocs(opts, cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	return cmd
}

func runDocs(opts *DocsOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListDocuments(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list documents", err)
	}

	result := DocsResult{Documents: make([]DocumentView, len(infos))}
	for i, info := range infos {
		result.Documents[i] = DocumentView{
			GUID:         info.GUID,
			ClientID:     info.ClientID,
			CreatedSeq:   info.CreatedSeq,
			CompactedSeq: info.CompactedSeq,
			Updates:      info.Updates,
		}
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(result)
}
