// Package cmd implements the geocat command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentic-research/geocat/internal/config"
	"github.com/agentic-research/geocat/internal/session"
)

// app carries the global flags and the logger shared by every command.
type app struct {
	configPath string
	logLevel   string
	log        *logrus.Logger
}

// open loads the configuration and opens a session over it. The config's
// log_level applies unless --log-level was given.
func (a *app) open(cmd *cobra.Command) (*session.Session, error) {
	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") {
		if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			a.log.SetLevel(lvl)
		}
	}
	a.log.WithField("config", path).Debugf("opening %d libraries", len(cfg.Libraries))
	return session.Open(cfg, a.log)
}

func newRootCmd() *cobra.Command {
	a := &app{log: logrus.New()}

	rootCmd := &cobra.Command{
		Use:           "geocat",
		Short:         "Browse, search and organize coordinate-system libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log.SetOutput(cmd.ErrOrStderr())
			lvl, err := logrus.ParseLevel(a.logLevel)
			if err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			a.log.SetLevel(lvl)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the HCL config (default ~/.agentic-research/geocat/geocat.hcl)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newTreeCmd(a),
		newSearchCmd(a),
		newTransferCmd(a, "move"),
		newTransferCmd(a, "copy"),
		newMkdirCmd(a),
		newRenameCmd(a),
		newRmCmd(a),
		newExportCmd(a),
		newServeNFSCmd(a),
		newMCPCmd(a),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
