// Package schema validates document projections against CUE schemas.
//
// A schema is a CUE source. Validation encodes the JSON projection of a
// document (or of the matches of a path query) as a CUE value, unifies it
// with the schema, and requires the result to be concrete. Each failure is
// reported as a Violation carrying the data path and schema position.
package schema

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ycoord/internal/node"
	"github.com/roach88/ycoord/internal/shared"
)

// Schema is a compiled CUE schema.
type Schema struct {
	ctx   *cue.Context
	value cue.Value
	name  string
}

// Violation is one validation failure.
type Violation struct {
	// Path is the dotted data path, empty for the root.
	Path    string
	Message string
	Pos     token.Pos
}

func (v *Violation) Error() string {
	loc := v.Path
	if loc == "" {
		loc = "(root)"
	}
	if v.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", v.Pos.Filename(), v.Pos.Line(), v.Pos.Column(), loc, v.Message)
	}
	return fmt.Sprintf("%s: %s", loc, v.Message)
}

// Compile compiles CUE source. name is used in positions.
func Compile(name, src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, firstError(err))
	}
	return &Schema{ctx: ctx, value: v, name: name}, nil
}

// LoadFile reads and compiles a CUE file.
func LoadFile(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(path, string(src))
}

// Name returns the name the schema was compiled with.
func (s *Schema) Name() string {
	return s.name
}

// Definition returns the schema narrowed to one definition or field, for
// example "#Document". Returns an error if the path does not exist.
func (s *Schema) Definition(path string) (*Schema, error) {
	v := s.value.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("schema %s: %s not found", s.name, path)
	}
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("schema %s: %s: %w", s.name, path, firstError(err))
	}
	return &Schema{ctx: s.ctx, value: v, name: s.name + ":" + path}, nil
}

// Validate checks n against the schema. It returns nil if n conforms.
func (s *Schema) Validate(n node.Node) []*Violation {
	data := s.ctx.Encode(node.ToAny(n))
	if err := data.Err(); err != nil {
		return []*Violation{{Message: err.Error()}}
	}
	unified := s.value.Unify(data)
	err := unified.Validate(cue.Concrete(true), cue.Final())
	if err == nil {
		return nil
	}
	return violations(err)
}

// ValidateDocument validates a document's projection. With an empty expr
// the whole projection is validated; otherwise every match of the JSONPath
// expression is validated on its own. The error reports query or engine
// failures, not violations.
func ValidateDocument(ctx context.Context, s *Schema, doc *shared.Document, expr string) ([]*Violation, error) {
	if expr == "" {
		snap, err := doc.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return s.Validate(snap), nil
	}

	matches, err := doc.QueryPath(ctx, expr)
	if err != nil {
		return nil, err
	}
	var out []*Violation
	for i, m := range matches {
		n, err := node.Parse([]byte(m))
		if err != nil {
			return nil, fmt.Errorf("match %d of %s: %w", i, expr, err)
		}
		for _, v := range s.Validate(n) {
			v.Path = joinPath(fmt.Sprintf("[%d]", i), v.Path)
			out = append(out, v)
		}
	}
	return out, nil
}

func violations(err error) []*Violation {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []*Violation{{Message: err.Error()}}
	}
	out := make([]*Violation, 0, len(errs))
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		v := &Violation{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		// Conflicts are reported once per conjunct.
		key := v.Path + "\x00" + v.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			v.Pos = pos[0]
		}
		out = append(out, v)
	}
	return out
}

// firstError extracts the first CUE error, keeping its position in the
// message.
func firstError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return violations(errs[0])[0]
}

func joinPath(prefix, path string) string {
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}
