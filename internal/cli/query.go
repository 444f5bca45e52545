package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/store"
)

// matchResult renders one match per line: the handle, then its targets.
type matchResult []store.Match

func (r matchResult) WriteText(w io.Writer) error {
	for _, m := range r {
		if _, err := fmt.Fprintf(w, "%s %s\n", m.Handle, strings.Join(m.Targets, " ")); err != nil {
			return err
		}
	}
	return nil
}

// countResult is the output of count.
type countResult struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

func (r countResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "nodes: %d\nlinks: %d\n", r.Nodes, r.Links)
	return err
}

// QueryOptions holds flags shared by the link query commands.
type QueryOptions struct {
	*RootOptions
	ToplevelOnly bool
}

func (o *QueryOptions) storeOptions() store.QueryOptions {
	return store.QueryOptions{ToplevelOnly: o.ToplevelOnly}
}

// NewNodeCommand creates the node command.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node <type> <name>",
		Short: "Print the handle of a stored node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				h, err := s.store.GetNodeHandle(cmd.Context(), args[0], args[1])
				if err != nil {
					return fail(formatter, "node lookup failed", err)
				}
				return formatter.Success(h)
			})
		},
	}
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match <type|*> <target|*>...",
		Short: "Find links by type and targets, with * as a wildcard",
		Long: `Find links by type and target handles. Any position, including the type,
may be the wildcard *.

Without wildcards the lookup is exact and fails when nothing matches. For
unordered link types (Similarity and Set by default) every ordering of the
targets is tried.

Example:
  hyperdb --db ./animals.db match Inheritance <chimp-handle> '*'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				matches, err := s.store.GetMatchedLinks(cmd.Context(), args[0], args[1:], opts.storeOptions())
				if err != nil {
					return fail(formatter, "match failed", err)
				}
				return formatter.Success(matchResult(matches))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.ToplevelOnly, "toplevel-only", false, "only return links that were inserted at top level")

	return cmd
}

// NewTypeCommand creates the type command.
func NewTypeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "type <type>",
		Short: "List every link of a named type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				matches, err := s.store.GetMatchedType(cmd.Context(), args[0], opts.storeOptions())
				if err != nil {
					return fail(formatter, "type query failed", err)
				}
				return formatter.Success(matchResult(matches))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.ToplevelOnly, "toplevel-only", false, "only return links that were inserted at top level")

	return cmd
}

// NewTemplateCommand creates the template command.
func NewTemplateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "template <json>",
		Short: "List links whose nested type matches a template",
		Long: `List links whose nested composite type matches a template given as a
JSON nested list of type names.

Example:
  hyperdb --db ./kb.db template '["Evaluation", "Predicate", ["Set", "Concept", "Concept"]]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			var tmpl atom.Template
			if err := json.Unmarshal([]byte(args[0]), &tmpl); err != nil {
				_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("invalid template: %v", err), nil)
				return WrapExitError(ExitCommandError, "invalid template", err)
			}

			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				matches, err := s.store.GetMatchedTypeTemplate(cmd.Context(), tmpl, opts.storeOptions())
				if err != nil {
					return fail(formatter, "template query failed", err)
				}
				return formatter.Success(matchResult(matches))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.ToplevelOnly, "toplevel-only", false, "only return links that were inserted at top level")

	return cmd
}

// NewNodesCommand creates the nodes command.
func NewNodesCommand(rootOpts *RootOptions) *cobra.Command {
	var names bool

	cmd := &cobra.Command{
		Use:   "nodes <type>",
		Short: "List the nodes of a type in insertion order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				out, err := s.store.GetAllNodes(cmd.Context(), args[0], names)
				if err != nil {
					return fail(formatter, "node listing failed", err)
				}
				return formatter.Success(out)
			})
		},
	}

	cmd.Flags().BoolVar(&names, "names", false, "print names instead of handles")

	return cmd
}

// NewTargetsCommand creates the targets command.
func NewTargetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "targets <handle>",
		Short: "Print the ordered targets of a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				targets, err := s.store.GetLinkTargets(cmd.Context(), args[0])
				if err != nil {
					return fail(formatter, "targets lookup failed", err)
				}
				return formatter.Success(targets)
			})
		},
	}
}

// NewIncomingCommand creates the incoming command.
func NewIncomingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "incoming <handle>",
		Short: "List the links that have an atom as a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				return formatter.Success(s.store.GetIncoming(cmd.Context(), args[0]))
			})
		},
	}
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored nodes and links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withSession(cmd.Context(), rootOpts, formatter, func(s *session) error {
				nodes, links, err := s.store.CountAtoms(cmd.Context())
				if err != nil {
					return fail(formatter, "count failed", err)
				}
				return formatter.Success(countResult{Nodes: nodes, Links: links})
			})
		},
	}
}
