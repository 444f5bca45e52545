package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hyperdb/internal/loader"
)

// loadResult summarizes a load.
type loadResult struct {
	Files int `json:"files"`
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

func (r loadResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Loaded %d node(s) and %d link(s) from %d file(s)\n", r.Nodes, r.Links, r.Files)
	return err
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <path>",
		Short: "Load a CUE knowledge base into the store",
		Long: `Load nodes and links from a .cue file, or from every .cue file in a
directory, and commit them.

A knowledge base has top-level nodes and links lists:

  nodes: [{type: "Concept", name: "human"}]
  links: [{type: "Inheritance", targets: [
      {type: "Concept", name: "human"},
      {type: "Concept", name: "mammal"},
  ]}]

Example:
  hyperdb --db ./animals.db load ./kb
  hyperdb --backend badger --db ./animals load animals.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runLoad(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	kb, err := loader.Load(path)
	if err != nil {
		return fail(formatter, "failed to load knowledge base", err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", kb.FileCount, path)

	return withSession(cmd.Context(), opts, formatter, func(s *session) error {
		res, err := kb.Apply(cmd.Context(), s.store)
		if err != nil {
			return fail(formatter, "failed to apply knowledge base", err)
		}
		if err := s.store.Commit(cmd.Context()); err != nil {
			return fail(formatter, "failed to commit", err)
		}
		formatter.VerboseLog("Committed %d node(s) and %d link(s)", res.Nodes, res.Links)

		return formatter.Success(loadResult{Files: kb.FileCount, Nodes: res.Nodes, Links: res.Links})
	})
}
