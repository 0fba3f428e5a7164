// Command bridgebot runs the Discord channel bridge.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/bridgebot/internal/boot"
	"github.com/memohai/bridgebot/internal/config"
	"github.com/memohai/bridgebot/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bridgebot",
		Short:         "Relay messages between paired Discord channels",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("config", "", "Config file path (default $CONFIG_PATH or config.toml).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig reads the config file named by --config, CONFIG_PATH or the default path and
// applies the environment overrides.
func loadConfig(cmd *cobra.Command) (config.Config, boot.EnvOverrides, error) {
	overrides, err := boot.ParseEnv()
	if err != nil {
		return config.Config{}, boot.EnvOverrides{}, err
	}
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) == "" {
		path = overrides.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, boot.EnvOverrides{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, overrides, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bridgebot %s\n", version.GetInfo())
		},
	}
}
