package prompthub

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prompthub/prompthub/internal/prompthub/config"
	"github.com/prompthub/prompthub/internal/prompthub/options"
	"github.com/prompthub/prompthub/pkg/logger"
)

const appName = "prompthub"

// NewApp builds the root command: flags from the option groups, config file
// and PROMPTHUB_* environment overrides through viper.
func NewApp() *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "prompthub is the centralized prompt management plane",
		Long:         `prompthub stores versioned prompt templates, composes them into scenes, and serves resolved prompt text over a REST API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if errs := opts.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %v", errs)
			}
			logger.Init(opts.LogOptions.Level, opts.LogOptions.Format)

			cfg, err := config.CreateConfigFromOptions(opts)
			if err != nil {
				return err
			}
			return Run(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file.")
	opts.AddFlags(cmd.Flags())
	return cmd
}

// loadConfig layers configuration: defaults, then file, then environment,
// then explicit flags.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.Options) error {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %q: %w", configFile, err)
		}
	}
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return v.Unmarshal(opts)
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	server, err := createAPIServer(cfg)
	if err != nil {
		return err
	}

	stopCh := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutdown signal received")
		close(stopCh)
	}()

	return server.PrepareRun().Run(stopCh)
}
