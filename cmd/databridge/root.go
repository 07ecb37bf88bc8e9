package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyConfig      = "config"
	keyMetricsAddr = "metrics_addr"
	keyLogLevel    = "log_level"
)

// newRootCmd wires the command tree. Flags are bound to a private viper
// instance so DATABRIDGE_* environment variables can stand in for them.
func newRootCmd() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "databridge",
		Short:         "Run source → transform → sink routes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringP(keyConfig, "c", "./data/routes.yaml", "routes configuration file (env DATABRIDGE_CONFIG)")
	_ = v.BindPFlag(keyConfig, root.PersistentFlags().Lookup(keyConfig))

	root.AddCommand(newRunCmd(v), newValidateCmd(v), newStatsCmd())
	return root
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DATABRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}
