package main

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a routes file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config %s is valid\n", v.GetString(keyConfig))
			for _, r := range cfg.Routes {
				src, _ := cfg.Source(r.DataSource)
				snk, _ := cfg.Sink(r.DataSink)
				fmt.Fprintf(out, "  %s: %s %s -> %s %s\n",
					r.RouteID, src.Kind, redact(src.Descriptor().ConnectionURI()), snk.Kind, snk.Descriptor().ConnectionURI())
			}
			return nil
		},
	}
}

var passwordParam = regexp.MustCompile(`(authPassword=)[^&]*`)

func redact(uri string) string {
	return passwordParam.ReplaceAllString(uri, "${1}xxxxx")
}
