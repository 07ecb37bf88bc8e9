package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ghalamif/databridge/pkg/databridge"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start every configured route and serve metrics until interrupted",
		Example: `  databridge run -c ./data/routes.yaml
  DATABRIDGE_METRICS_ADDR=:9200 databridge run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := databridge.New(cfg)
			if err != nil {
				return err
			}
			b.Logger().Info("starting databridge",
				zap.String("config", v.GetString(keyConfig)),
				zap.Int("routes", len(cfg.Routes)),
			)
			if err := b.Run(ctx); err != nil && err != context.Canceled {
				return fmt.Errorf("bridge exited: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("metrics-addr", "", "metrics listen address, overrides metrics.addr (env DATABRIDGE_METRICS_ADDR)")
	cmd.Flags().String("log-level", "", "log level, overrides logging.level (env DATABRIDGE_LOG_LEVEL)")
	_ = v.BindPFlag(keyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	_ = v.BindPFlag(keyLogLevel, cmd.Flags().Lookup("log-level"))
	return cmd
}

// loadConfig reads the routes file named by --config, then applies flag and
// environment overrides before validating.
func loadConfig(v *viper.Viper) (*databridge.Config, error) {
	path := v.GetString(keyConfig)
	cfg, err := databridge.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if addr := v.GetString(keyMetricsAddr); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if lvl := v.GetString(keyLogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}
