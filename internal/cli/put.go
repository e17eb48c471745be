package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ycoord/internal/node"
	"github.com/roach88/ycoord/internal/shared"
	"github.com/roach88/ycoord/internal/store"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Database string
	Kind     string // "map" | "list" | "text"
}

// PutResult describes one stored edit.
type PutResult struct {
	GUID    string `json:"guid"`
	Root    string `json:"root"`
	Kind    string `json:"kind"`
	Key     string `json:"key,omitempty"`
	Seq     int64  `json:"seq"`
	Created bool   `json:"created"`
}

// WriteText implements TextWriter.
func (r PutResult) WriteText(w io.Writer) {
	target := r.Root
	if r.Key != "" {
		target += "." + r.Key
	}
	verb := "updated"
	if r.Created {
		verb = "created"
	}
	fmt.Fprintf(w, "%s %s: wrote %s (update %d)\n", verb, r.GUID, target, r.Seq)
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <guid> <root> [key] <value>",
		Short: "Write a value into a stored document",
		Long: `Write one value into a root collection of a stored document, creating
the document if it does not exist. The edit is stored as one update.

With --kind map (the default) the value is JSON and is set under key.
With --kind list the JSON value is appended. With --kind text the value
is appended as plain text.

Examples:
  ycoord put --db ./ycoord.db notes settings theme '"dark"'
  ycoord put --db ./ycoord.db notes items --kind list '{"title":"milk"}'
  ycoord put --db ./ycoord.db notes body --kind text 'hello'`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args, cmd)
		},
	}

	addDatabaseFlag(cmd, &opts.Database)
	cmd.Flags().StringVar(&opts.Kind, "kind", "map", "root collection kind (map|list|text)")

	return cmd
}

func runPut(opts *PutOptions, args []string, cmd *cobra.Command) error {
	guid, root := args[0], args[1]
	var key, raw string
	switch opts.Kind {
	case "map":
		if len(args) != 4 {
			return NewExitError(ExitCommandError, "map put needs <guid> <root> <key> <value>")
		}
		key, raw = args[2], args[3]
	case "list", "text":
		if len(args) != 3 {
			return NewExitError(ExitCommandError, opts.Kind+" put needs <guid> <root> <value>")
		}
		raw = args[2]
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be map, list or text", opts.Kind))
	}

	var value node.Node
	if opts.Kind != "text" {
		v, err := node.Parse([]byte(raw))
		if err != nil {
			return WrapExitError(ExitCommandError, "value is not valid JSON", err)
		}
		value = v
	}

	ctx := commandContext(cmd)
	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	doc, created, err := openOrCreate(ctx, opts.RootOptions, st, guid)
	if err != nil {
		return err
	}
	defer doc.Destroy(ctx)

	var update []byte
	err = doc.TransactOrigin(ctx, OriginCLI, func(tx *shared.Txn) error {
		var err error
		switch opts.Kind {
		case "map":
			err = shared.GetMap[node.Node](doc, root).SetTx(tx, key, value)
		case "list":
			err = shared.GetList[node.Node](doc, root).AppendTx(tx, value)
		case "text":
			err = shared.GetText(doc, root).AppendTx(tx, raw)
		}
		if err != nil {
			return err
		}
		update = doc.EncodeUpdateTx(tx)
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to apply edit", err)
	}

	seq, err := st.AppendUpdate(ctx, guid, OriginCLI, update)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to store update", err)
	}
	opts.logger().Debug("update stored", "doc", guid, "seq", seq, "bytes", len(update))

	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(PutResult{
		GUID:    guid,
		Root:    root,
		Kind:    opts.Kind,
		Key:     key,
		Seq:     seq,
		Created: created,
	})
}

// openOrCreate loads guid, or registers a fresh document under it.
func openOrCreate(ctx context.Context, opts *RootOptions, st *store.Store, guid string) (*shared.Document, bool, error) {
	_, exists, err := st.GetDocument(ctx, guid)
	if err != nil {
		return nil, false, WrapExitError(ExitCommandError, "failed to look up document", err)
	}
	if exists {
		doc, err := loadDocument(ctx, opts, st, guid)
		return doc, false, err
	}

	o := shared.DefaultOptions()
	o.GUID = guid
	o.Logger = opts.logger()
	doc := shared.NewDocument(o)
	if _, err := st.EnsureDocument(ctx, guid, doc.ClientID()); err != nil {
		return nil, false, WrapExitError(ExitCommandError, "failed to register document", err)
	}
	opts.logger().Info("document created", "doc", guid, "client_id", doc.ClientID())
	return doc, true, nil
}
