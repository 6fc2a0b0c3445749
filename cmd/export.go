package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/library"
	"github.com/agentic-research/geocat/internal/writeback"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export-db <library> <out.db>",
		Short: "Write a library's definitions and native groups into a SQLite library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, out := args[0], args[1]
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			var (
				defs   []library.Definition
				groups []library.NativeGroup
			)
			err = sess.Do(func(c *catalog.Catalog) error {
				root := c.Root(name)
				if root == nil || root.IsFavorites() {
					return fmt.Errorf("%s: %w", name, catalog.ErrNoPath)
				}
				lib := root.Library()
				for key := range lib.Store.Enumerate() {
					d, err := lib.Store.Lookup(key)
					if err != nil {
						// Malformed records are skipped, as they are everywhere else.
						a.log.WithError(err).WithField("key", key).Warn("export: skipping definition")
						continue
					}
					defs = append(defs, d)
				}
				groups = lib.NativeGroups()
				return nil
			})
			if err != nil {
				return err
			}

			err = writeback.ReplaceWith(out, func(tmp string) error {
				db, err := library.OpenSQLite(tmp, false)
				if err != nil {
					return err
				}
				if err := db.Put(defs...); err != nil {
					return errors.Join(err, db.Close())
				}
				for i, g := range groups {
					if err := db.PutGroup(g, i); err != nil {
						return errors.Join(err, db.Close())
					}
				}
				return db.Close()
			})
			if err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d definitions and %d groups to %s\n", len(defs), len(groups), out)
			return nil
		},
	}
}
