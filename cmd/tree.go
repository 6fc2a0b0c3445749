package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/persist"
)

func newTreeCmd(a *app) *cobra.Command {
	var (
		depth  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the catalog tree, or one library or group of it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			out := cmd.OutOrStdout()
			return sess.Do(func(c *catalog.Catalog) error {
				var nodes []*catalog.Node
				if len(args) == 1 {
					n, err := c.Lookup(args[0])
					if err != nil {
						return err
					}
					nodes = []*catalog.Node{n}
				} else {
					nodes = c.Roots()
				}

				if format == "text" {
					for _, n := range nodes {
						printTree(out, c, n, 0, depth)
					}
					return nil
				}

				var docs []*api.Organization
				for _, n := range nodes {
					if n.IsGroup() {
						docs = append(docs, persist.Serialize(n))
					}
				}
				if format == "json" {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(docs)
				}
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer func() { _ = enc.Close() }()
				return enc.Encode(docs)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "Levels to expand below the starting node; negative for all")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml (organization document)")
	return cmd
}

// printTree writes n and, while depth allows, its populated children.
func printTree(w io.Writer, c *catalog.Catalog, n *catalog.Node, level, depth int) {
	indent := strings.Repeat("  ", level)
	if !n.IsGroup() {
		if n.Entry.Description != "" {
			_, _ = fmt.Fprintf(w, "%s%s  %s\n", indent, n.Entry.Key, n.Entry.Description)
		} else {
			_, _ = fmt.Fprintf(w, "%s%s\n", indent, n.Entry.Key)
		}
		return
	}
	if n.Description != "" {
		_, _ = fmt.Fprintf(w, "%s%s/  %s\n", indent, n.Name, n.Description)
	} else {
		_, _ = fmt.Fprintf(w, "%s%s/\n", indent, n.Name)
	}
	if depth >= 0 && level >= depth {
		return
	}
	c.Populate(n)
	for _, ch := range n.Children() {
		printTree(w, c, ch, level+1, depth)
	}
}
