// Package cli implements navguardctl, the command-line client for a running
// navguardd.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version information set at build time
var version = "dev"

// DefaultServer is the daemon's default listen address.
const DefaultServer = "http://127.0.0.1:8787"

// ServerEnv overrides the default --server value.
const ServerEnv = "NAV_SERVER"

type rootOptions struct {
	server  string
	timeout time.Duration
	verbose bool
	json    bool
}

// NewRootCmd builds a fresh command tree. Each call has its own flag state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "navguardctl",
		Short: "Manage a running navguard daemon",
		Long: `navguardctl edits the whitelist and blocklist of a running navguardd
and asks it how a URL would be treated.

Lists:
  whitelist  patterns that are always allowed
  blocklist  patterns that are always blocked

Patterns are matched as substrings of the full URL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv(ServerEnv)
	if server == "" {
		server = DefaultServer
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "navguardd base URL (env "+ServerEnv+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log API calls to stderr")
	cmd.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "print replies as JSON")

	cmd.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newWhitelistCmd(opts),
		newImportCmd(opts),
		newCheckCmd(opts),
	)
	return cmd
}

// Execute runs navguardctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) logger(cmd *cobra.Command) *log.Logger {
	if !o.verbose {
		return log.New(io.Discard)
	}
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:           log.DebugLevel,
		Prefix:          "navguardctl",
		ReportTimestamp: true,
	})
}

func (o *rootOptions) client(cmd *cobra.Command) (*Client, error) {
	return NewClient(o.server, WithLogger(o.logger(cmd)))
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, o.timeout)
}
