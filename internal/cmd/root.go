// Package cmd provides the reachd CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "reachd",
	Short:   "DragonReach - declarative service manager",
	Version: Version,
	Long: `DragonReach (reachd) is an init-style service manager.

It parses declarative unit files describing services, targets, and
timers, resolves their dependency graph, launches and supervises child
processes, and exposes a control channel for reachctl.`,
}

// Execute runs the root command and returns an exit code. The caller
// (main) should call os.Exit with this code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		// Errors already printed by cobra
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to reach.toml (default /etc/reach/reach.toml)")
}
