package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdelaire/turnbot/adapters/telegram_client"
	"github.com/jdelaire/turnbot/internal/keychain"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register, inspect or remove the Telegram webhook",
	}
	cmd.AddCommand(newWebhookSetCmd(), newWebhookDeleteCmd(), newWebhookInfoCmd())
	return cmd
}

// clientFromConfig loads the config and builds an API client with its token.
func clientFromConfig(cmd *cobra.Command) (*telegram_client.Client, string, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", "", err
	}
	if err := cfg.ResolveToken(keychain.BotToken); err != nil {
		return nil, "", "", err
	}
	client, err := telegram_client.New(cfg.Token)
	if err != nil {
		return nil, "", "", err
	}
	return client, cfg.Webhook.URL, cfg.Webhook.Secret, nil
}

func newWebhookSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [url]",
		Short: "Point Telegram at the public webhook url (defaults to webhook.url)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, configured, secret, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			raw := configured
			if len(args) == 1 {
				raw = args[0]
			}
			if raw == "" {
				return errors.New("no webhook url: pass one or set webhook.url")
			}
			u, err := telegram_client.ParseWebhookURL(raw)
			if err != nil {
				return err
			}
			if err := client.SetWebhook(cmd.Context(), u.String(), secret); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", u)
			return nil
		},
	}
}

func newWebhookDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending")
			if err := client.DeleteWebhook(cmd.Context(), drop); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	cmd.Flags().Bool("drop-pending", false, "Discard updates queued by Telegram.")
	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the registered webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, _, err := clientFromConfig(cmd)
			if err != nil {
				return err
			}
			info, err := client.GetWebhookInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			out := cmd.OutOrStdout()
			if info.URL == "" {
				fmt.Fprintln(out, "no webhook set (polling)")
			} else {
				fmt.Fprintf(out, "url:      %s\n", info.URL)
			}
			fmt.Fprintf(out, "pending:  %d\n", info.PendingUpdateCount)
			if info.LastErrorDate != 0 {
				fmt.Fprintf(out, "last err: %s (%s)\n", info.LastErrorMessage,
					time.Unix(info.LastErrorDate, 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}
