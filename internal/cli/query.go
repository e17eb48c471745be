package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/shared"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
}

// QueryResult holds the matches of one JSONPath expression.
type QueryResult struct {
	GUID    string            `json:"guid"`
	Path    string            `json:"path"`
	Matches []json.RawMessage `json:"matches"`
}

// WriteText implements TextWriter.
func (r QueryResult) WriteText(w io.Writer) {
	if len(r.Matches) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	for _, m := range r.Matches {
		fmt.Fprintf(w, "%s\n", m)
	}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <guid> <jsonpath>",
		Short: "Evaluate a JSONPath expression against a stored document",
		Long: `Evaluate a JSONPath expression against the projection of a stored
document and print each match as JSON, one per line.

Examples:
  ycoord query --db ./ycoord.db notes '$.settings.theme'
  ycoord query --db ./ycoord.db notes '$.items[*].title' --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	return cmd
}

func runQuery(opts *QueryOptions, guid, expr string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := loadDocument(ctx, opts.RootOptions, st, guid)
	if err != nil {
		return err
	}
	defer doc.Destroy(ctx)

	matches, err := doc.QueryPath(ctx, expr)
	if shared.IsPathError(err) {
		return WrapExitError(ExitCommandError, "invalid JSONPath expression", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	result := QueryResult{GUID: guid, Path: expr, Matches: make([]json.RawMessage, len(matches))}
	for i, m := range matches {
		result.Matches[i] = json.RawMessage(m)
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(result)
}
