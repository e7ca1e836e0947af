// Package cli provides the extbridge command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/extbridge/internal/version"
)

// NewRootCmd builds the extbridge command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "extbridge",
		Short: "Host side of the extension process bridge",
		Long: `extbridge launches an extension process and serves the host side of the
bridge: webview panels, custom editors, commands and the document and tab
models the extension mirrors.

Configuration is read from an optional TOML file and EXTBRIDGE_ environment
variables, in that order of precedence after the built-in defaults.`,
		Version:      version.Short(),
		SilenceUsage: true,
	}
	root.SetVersionTemplate(version.String("extbridge") + "\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}
