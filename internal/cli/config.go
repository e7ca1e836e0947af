package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/extbridge/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	var listEnv bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration extbridge would run with, after applying the
configuration file and the environment. With --env, list the environment
variables that override settings instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if listEnv {
				fmt.Fprintln(out, strings.Join(config.EnvNames(), "\n"))
				return nil
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			for _, name := range config.UnknownEnv(os.Environ()) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: unknown variable %s\n", name)
			}
			data, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&listEnv, "env", false, "list supported environment variables")
	return cmd
}
