package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/geocat/internal/mcptools"
	"github.com/agentic-research/geocat/internal/nfsmount"
)

// version is reported by the MCP server.
var version = "dev"

func newServeNFSCmd(a *app) *cobra.Command {
	var (
		addr     string
		writable bool
	)
	cmd := &cobra.Command{
		Use:   "serve-nfs [mountpoint]",
		Short: "Export the catalog tree over NFS, mounting it when a mountpoint is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := []nfsmount.Option{nfsmount.WithLogger(a.log)}
			if writable {
				opts = append(opts, nfsmount.WithEdits())
			}
			srv, err := nfsmount.NewServer(nfsmount.NewCatalogFS(sess, opts...), addr)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			go func() {
				if err := sess.Engine().Watch(ctx); err != nil {
					a.log.WithError(err).Warn("library watcher stopped")
				}
			}()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "NFS server listening on port %d\n", srv.Port())
			if len(args) == 1 {
				mountpoint := args[0]
				if err := nfsmount.Mount(srv.Port(), mountpoint, writable); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mounted at %s\n", mountpoint)
				defer func() {
					if err := nfsmount.Unmount(mountpoint); err != nil {
						a.log.WithError(err).Warn("unmount")
					}
				}()
			}

			select {
			case <-ctx.Done():
				return nil
			case err := <-srv.Done():
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "Listen address")
	cmd.Flags().BoolVar(&writable, "writable", false, "Allow renames, removals and mkdir to edit writable organizations")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the catalog to agents over MCP (stdio, or streamable HTTP with --http)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := sess.Engine().Watch(ctx); err != nil {
					a.log.WithError(err).Warn("library watcher stopped")
				}
			}()

			srv := mcptools.New(sess, mcptools.WithLogger(a.log), mcptools.WithVersion(version))
			if httpAddr == "" {
				return srv.ServeStdio()
			}
			return srv.ServeHTTP(ctx, httpAddr, func(addr net.Addr) {
				a.log.Infof("MCP listening on http://%s/mcp", addr)
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	return cmd
}
