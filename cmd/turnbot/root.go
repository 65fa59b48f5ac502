package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelaire/turnbot/internal/config"
)

func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "turnbot",
		Short:        "Conversational Telegram bot",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file path (optional). Settings can also come from TURNBOT_* env vars.")
	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (overrides log.level).")
	cmd.PersistentFlags().String("log-format", "", "Logging format: text|json (overrides log.format).")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWebhookCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

// configPath returns the --config flag value.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return strings.TrimSpace(path)
}

// loadConfig reads the config file named by --config and applies the logging
// flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New(configPath(cmd))
	if err != nil {
		return nil, err
	}
	for key, flag := range map[string]string{"log.level": "log-level", "log.format": "log-format"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}
	return config.Load(v)
}
