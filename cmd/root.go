// Package cmd implements the repostored command line.
package cmd

import (
	"github.com/grovetools/repostore/cli"
	"github.com/spf13/cobra"
)

// NewRootCmd returns the repostored command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"repostored",
		"Repository state cache daemon",
	)
	root.Long = `repostored keeps an in-memory cache of repository metadata: repository
objects, resolved revisions, commits, branches, tags and tree inventories.
Producers dispatch actions that replace cached entries; readers query the
cache over a Unix socket and subscribe to change notifications.`
	root.PersistentFlags().String("endpoint", "", "Daemon socket path or http(s) URL (defaults to the configured socket)")
	cli.SetVersion(root)

	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newDispatchCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newActionsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(cli.NewVersionCommand("repostored"))

	return root
}
