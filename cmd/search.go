package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agentic-research/geocat/internal/search"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		all       bool
		libraries []string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "search <terms...>",
		Short: "Search definitions by key, description, EPSG code and other attributes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
			defer stop()

			hits, err := sess.Search(ctx, search.Query{
				Libraries: libraries,
				Terms:     args,
				MatchAny:  !all,
			})
			if err != nil {
				return err
			}
			if limit > 0 && len(hits) > limit {
				hits = hits[:limit]
			}
			out := cmd.OutOrStdout()
			for _, h := range hits {
				_, _ = fmt.Fprintf(out, "%5d  %-12s  %-24s  %s\n", h.Score, h.Entry.Library.Name, h.Entry.Key, h.Entry.Description)
			}
			a.log.Debugf("%d hits", len(hits))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Require every term to match")
	cmd.Flags().StringArrayVar(&libraries, "library", nil, "Limit the search to a library (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 for all)")
	return cmd
}

// cmdContext returns the command's context, or Background when the command
// was executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
