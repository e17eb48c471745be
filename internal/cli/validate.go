package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Database   string
	Path       string
	Definition string
}

// ViolationView is one schema violation.
type ViolationView struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidateResult is the outcome of validating one document.
type ValidateResult struct {
	GUID       string          `json:"guid"`
	Schema     string          `json:"schema"`
	Valid      bool            `json:"valid"`
	Violations []ViolationView `json:"violations"`
}

// WriteText implements TextWriter.
func (r ValidateResult) WriteText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "%s conforms to %s\n", r.GUID, r.Schema)
		return
	}
	fmt.Fprintf(w, "%s does not conform to %s:\n", r.GUID, r.Schema)
	for _, v := range r.Violations {
		path := v.Path
		if path == "" {
			path = "(root)"
		}
		fmt.Fprintf(w, "  %s: %s\n", path, v.Message)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <guid> <schema.cue>",
		Short: "Validate a stored document against a CUE schema",
		Long: `Validate the projection of a stored document against a CUE schema.

With --path, every match of the JSONPath expression is validated on its
own. With --definition, the schema is narrowed to one definition first.

Exit codes:
  0 - Document conforms
  1 - Schema violations found
  2 - Command error (unknown document, schema does not compile, etc.)

Examples:
  ycoord validate --db ./ycoord.db notes ./notes.cue
  ycoord validate --db ./ycoord.db notes ./notes.cue --definition '#Item' --path '$.items[*]'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], args[1], cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	cmd.Flags().StringVar(&opts.Path, "path", "", "JSONPath selecting the values to validate")
	cmd.Flags().StringVar(&opts.Definition, "definition", "", "schema definition to validate against (e.g. #Document)")

	return cmd
}

func runValidate(opts *ValidateOptions, guid, schemaPath string, cmd *cobra.Command) error {
	s, err := schema.LoadFile(schemaPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	if opts.Definition != "" {
		if s, err = s.Definition(opts.Definition); err != nil {
			return WrapExitError(ExitCommandError, "failed to select definition", err)
		}
	}

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

	violations, err := schema.ValidateDocument(ctx, s, doc, opts.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "validation failed", err)
	}

	result := ValidateResult{
		GUID:       guid,
		Schema:     s.Name(),
		Valid:      len(violations) == 0,
		Violations: make([]ViolationView, len(violations)),
	}
	for i, v := range violations {
		result.Violations[i] = ViolationView{Path: v.Path, Message: v.Message}
	}

	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if result.Valid {
		return f.Success(result)
	}
	if err := f.Failure("E_SCHEMA", fmt.Sprintf("%d violation(s)", len(violations)), result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %d schema violation(s)", guid, len(violations)))
}
