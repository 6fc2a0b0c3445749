package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/geocat/internal/reorg"
	"github.com/agentic-research/geocat/internal/session"
)

// errRejected marks a reorganization the catalog refused.
var errRejected = errors.New("rejected")

// applied turns a non-successful result into an error and flushes otherwise.
func applied(sess *session.Session, res reorg.Result) error {
	if !res.OK() {
		if res.Status == reorg.StoreError && res.Err != nil {
			return fmt.Errorf("%s: %w", res.Reason, res.Err)
		}
		return fmt.Errorf("%w: %s", errRejected, res.Reason)
	}
	return sess.Flush()
}

func newTransferCmd(a *app, verb string) *cobra.Command {
	effect := reorg.Move
	short := "Move an entry or group onto a group, or before an entry"
	if verb == "copy" {
		effect = reorg.Copy
		short = "Copy an entry or group onto a group, or before an entry"
	}
	var dryRun bool
	cmd := &cobra.Command{
		Use:   verb + " <source-path> <target-path>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			var res reorg.Result
			if dryRun {
				res, err = sess.Plan(args[0], args[1], effect)
			} else {
				res, err = sess.Transfer(cmdContext(cmd), args[0], args[1], effect)
			}
			if err != nil {
				return err
			}
			if dryRun {
				if !res.OK() {
					return fmt.Errorf("%w: %s", errRejected, res.Reason)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "would %s %s -> %s\n", res.Effect, args[0], args[1])
				return nil
			}
			if err := applied(sess, res); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", res.Effect, args[0], args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report the effect the transfer would have")
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "mkdir <parent-path> <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			res, err := sess.CreateGroup(args[0], args[1], description)
			if err != nil {
				return err
			}
			return applied(sess, res)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Group description")
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "rename <group-path> <name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			desc := description
			if !cmd.Flags().Changed("description") {
				desc, err = sess.Description(args[0])
				if err != nil {
					return err
				}
			}
			res, err := sess.Rename(args[0], args[1], desc)
			if err != nil {
				return err
			}
			return applied(sess, res)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description (default: unchanged)")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	var deleteFromLibrary bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove an entry or group from its organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			res, err := sess.Remove(cmdContext(cmd), args[0], deleteFromLibrary)
			if err != nil {
				return err
			}
			return applied(sess, res)
		},
	}
	cmd.Flags().BoolVar(&deleteFromLibrary, "delete", false, "Also delete the entries from their user library")
	return cmd
}
